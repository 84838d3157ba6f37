package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// AP reconciliation reason codes, in rule-declaration order. A bill that
// matches several rules is flagged once, with the first matching reason.
const (
	ReasonAPOverdue       = "ap_overdue"
	ReasonAPAgedOver60    = "ap_aged_over_60"
	ReasonAPDuplicateNote = "ap_duplicate_note"
)

// agedDaysLimit is the aging cutoff shared by the AP and AR checks.
const agedDaysLimit = 60

// APReconciliation flags payable bills that are overdue, aged beyond
// the cutoff, or annotated as possible duplicates.
type APReconciliation struct{}

func (APReconciliation) Name() string      { return NameAP }
func (APReconciliation) Namespace() string { return "ap" }

func (e APReconciliation) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.AP) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "ap_bills"}
	}

	bills := slices.Clone(ds.AP)
	slices.SortFunc(bills, func(a, b domain.APBill) int {
		return strings.Compare(a.ID, b.ID)
	})

	inputIDs := make([]string, 0, len(bills))
	byVendor := map[string][]Peer{}
	for _, b := range bills {
		inputIDs = append(inputIDs, b.ID)
		key := b.Entity + "|" + b.Vendor
		byVendor[key] = append(byVendor[key], Peer{
			ID:     b.ID,
			Amount: b.Amount,
			Days:   int64(b.AgeDays),
		})
	}

	var (
		exceptions      []Exception
		totalFlaggedAbs = decimal.Zero
	)
	for _, b := range bills {
		reason, rationale := apReason(b)
		if reason == "" {
			continue
		}
		totalFlaggedAbs = totalFlaggedAbs.Add(b.Amount.Abs())
		exceptions = append(exceptions, Exception{
			Entity:      b.Entity,
			Identifiers: []string{b.ID},
			Amount:      b.Amount,
			Currency:    b.Currency,
			Reason:      reason,
			Rationale:   rationale,
			Candidates: scorePeers(
				Peer{ID: b.ID, Amount: b.Amount, Days: int64(b.AgeDays)},
				byVendor[b.Entity+"|"+b.Vendor],
			),
		})
	}

	w := env.Metrics
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
			"exception_count":   int64(len(exceptions)),
			"total_flagged_abs": totalFlaggedAbs,
			"bills":             int64(len(bills)),
		},
		InputRowIDs: inputIDs,
	}, nil
}

func apReason(b domain.APBill) (string, string) {
	switch {
	case b.Status == "Overdue":
		return ReasonAPOverdue, fmt.Sprintf("bill %s is overdue at %d days", b.ID, b.AgeDays)
	case b.AgeDays > agedDaysLimit:
		return ReasonAPAgedOver60, fmt.Sprintf("bill %s aged %d days, limit %d", b.ID, b.AgeDays, agedDaysLimit)
	case strings.Contains(strings.ToLower(b.Notes), "duplicate"):
		return ReasonAPDuplicateNote, fmt.Sprintf("bill %s notes mention a duplicate", b.ID)
	}
	return "", ""
}
