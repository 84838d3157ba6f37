package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// Bank reconciliation reason codes.
const (
	ReasonDuplicateCandidate = "duplicate_candidate"
	ReasonTimingCandidate    = "timing_candidate"
)

// DefaultTimingWindowDays is the default window for timing-difference
// detection.
const DefaultTimingWindowDays = 3

// BankReconciliation detects duplicate and timing-difference candidates
// in bank transactions.
//
// Duplicates share the full signature (entity, date, amount, currency,
// counterparty, type); within a group the smallest identifier is the
// primary and every other member is flagged against it. Timing
// candidates share the signature excluding date: a later transaction
// within WindowDays of an earlier one is flagged against that earlier
// transaction. A transaction can carry both tags, always as two
// independent exception entries.
type BankReconciliation struct {
	// WindowDays overrides DefaultTimingWindowDays when positive.
	WindowDays int
}

func (BankReconciliation) Name() string      { return NameBank }
func (BankReconciliation) Namespace() string { return "bank" }

func (e BankReconciliation) window() int64 {
	if e.WindowDays > 0 {
		return int64(e.WindowDays)
	}
	return DefaultTimingWindowDays
}

func (e BankReconciliation) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.Bank) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "bank_transactions"}
	}

	txns := slices.Clone(ds.Bank)
	slices.SortFunc(txns, func(a, b domain.BankTxn) int {
		return strings.Compare(a.ID, b.ID)
	})

	inputIDs := make([]string, 0, len(txns))
	byEntity := map[string][]Peer{}
	for _, t := range txns {
		inputIDs = append(inputIDs, t.ID)
		byEntity[t.Entity] = append(byEntity[t.Entity], Peer{
			ID:     t.ID,
			Amount: t.Amount,
			Days:   epochDays(t.Date.Unix()),
		})
	}

	hint := func(t domain.BankTxn) []CandidateHint {
		return scorePeers(Peer{ID: t.ID, Amount: t.Amount, Days: epochDays(t.Date.Unix())}, byEntity[t.Entity])
	}

	var exceptions []Exception
	totalFlaggedAbs := decimal.Zero
	flag := func(t domain.BankTxn, matchID, reason, rationale string) {
		totalFlaggedAbs = totalFlaggedAbs.Add(t.Amount.Abs())
		exceptions = append(exceptions, Exception{
			Entity:      t.Entity,
			Identifiers: []string{t.ID, matchID},
			Amount:      t.Amount,
			Currency:    t.Currency,
			Reason:      reason,
			Rationale:   rationale,
			Candidates:  hint(t),
		})
	}

	duplicateCount := e.flagDuplicates(txns, flag)
	timingCount := e.flagTiming(txns, flag)

	w := env.Metrics
	if err := w.SetInt("duplicate_count", duplicateCount); err != nil {
		return nil, err
	}
	if err := w.SetInt("timing_count", timingCount); err != nil {
		return nil, err
	}
	if err := w.SetInt("exception_count", int64(len(exceptions))); err != nil {
		return nil, err
	}
	if err := w.SetDec("total_flagged_abs", totalFlaggedAbs); err != nil {
		return nil, err
	}

	return &Artifact{
		Name:        e.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Exceptions:  exceptions,
		Summary: map[string]any{
			"duplicate_count":   duplicateCount,
			"timing_count":      timingCount,
			"exception_count":   int64(len(exceptions)),
			"total_flagged_abs": totalFlaggedAbs,
			"window_days":       e.window(),
			"transactions":      int64(len(txns)),
		},
		InputRowIDs: inputIDs,
	}, nil
}

// flagDuplicates groups by full signature. txns must be sorted by ID so
// the group's first member is the minimum-identifier primary.
func (e BankReconciliation) flagDuplicates(txns []domain.BankTxn, flag func(domain.BankTxn, string, string, string)) int64 {
	groups := map[string][]domain.BankTxn{}
	for _, t := range txns {
		sig := strings.Join([]string{
			t.Entity, t.Date.UTC().Format("2006-01-02"), t.Amount.String(),
			t.Currency, t.Counterparty, t.Type,
		}, "|")
		groups[sig] = append(groups[sig], t)
	}

	sigs := make([]string, 0, len(groups))
	for sig := range groups {
		sigs = append(sigs, sig)
	}
	slices.Sort(sigs)

	var count int64
	for _, sig := range sigs {
		group := groups[sig]
		if len(group) < 2 {
			continue
		}
		primary := group[0]
		for _, dup := range group[1:] {
			count++
			flag(dup, primary.ID, ReasonDuplicateCandidate,
				fmt.Sprintf("same signature as %s (%s %s to %s on %s)",
					primary.ID, dup.Amount, dup.Currency, dup.Counterparty,
					dup.Date.UTC().Format("2006-01-02")))
		}
	}
	return count
}

// flagTiming groups by signature excluding date and flags later
// transactions landing within the window of the closest earlier one.
// Same-day pairs belong to the duplicate check, not this one.
func (e BankReconciliation) flagTiming(txns []domain.BankTxn, flag func(domain.BankTxn, string, string, string)) int64 {
	groups := map[string][]domain.BankTxn{}
	for _, t := range txns {
		sig := strings.Join([]string{
			t.Entity, t.Amount.String(), t.Currency, t.Counterparty, t.Type,
		}, "|")
		groups[sig] = append(groups[sig], t)
	}

	sigs := make([]string, 0, len(groups))
	for sig := range groups {
		sigs = append(sigs, sig)
	}
	slices.Sort(sigs)

	window := e.window()
	var count int64
	for _, sig := range sigs {
		group := groups[sig]
		if len(group) < 2 {
			continue
		}
		slices.SortFunc(group, func(a, b domain.BankTxn) int {
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		for i := 1; i < len(group); i++ {
			later := group[i]
			// Closest strictly earlier transaction in the group.
			for j := i - 1; j >= 0; j-- {
				earlier := group[j]
				gap := epochDays(later.Date.Unix()) - epochDays(earlier.Date.Unix())
				if gap == 0 {
					continue
				}
				if gap <= window {
					count++
					flag(later, earlier.ID, ReasonTimingCandidate,
						fmt.Sprintf("matches %s except date, %d day(s) later", earlier.ID, gap))
				}
				break
			}
		}
	}
	return count
}
