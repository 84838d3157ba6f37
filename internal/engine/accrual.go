package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// Accrual check reason codes.
const (
	ReasonAccrualShouldReverse = "explicit_should_reverse"
	ReasonAccrualBadReversal   = "reversal_outside_next_period"
)

// AccrualCheck inspects in-period accruals for explicit reversal
// markers and for reversal dates that miss the next calendar period.
// Every finding carries a reversal proposal dated to the next period
// with the amount negated.
type AccrualCheck struct{}

func (AccrualCheck) Name() string      { return NameAccrual }
func (AccrualCheck) Namespace() string { return "accrual" }

func (e AccrualCheck) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.Accruals) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "accruals"}
	}

	accruals := slices.Clone(ds.Accruals)
	slices.SortFunc(accruals, func(a, b domain.Accrual) int {
		return strings.Compare(a.ID, b.ID)
	})

	period := env.State.Period
	next := period.Next()

	var (
		inputIDs        []string
		exceptions      []Exception
		proposals       []Proposal
		totalFlaggedAbs = decimal.Zero
	)
	for _, a := range accruals {
		inputIDs = append(inputIDs, a.ID)
		if !period.Contains(a.AccrualDate) {
			continue
		}

		var reason, rationale string
		switch {
		case a.Status == domain.AccrualShouldReverse:
			reason = ReasonAccrualShouldReverse
			rationale = fmt.Sprintf("accrual %s is marked for reversal", a.ID)
		case a.Status == domain.AccrualActive && !next.Contains(a.ReversalDate):
			reason = ReasonAccrualBadReversal
			rationale = fmt.Sprintf("accrual %s reversal date misses period %s", a.ID, next)
		default:
			continue
		}

		totalFlaggedAbs = totalFlaggedAbs.Add(a.AmountUSD.Abs())
		exceptions = append(exceptions, Exception{
			Entity:      a.Entity,
			Identifiers: []string{a.ID},
			Amount:      a.AmountUSD,
			Currency:    "USD",
			Reason:      reason,
			Rationale:   rationale,
		})
		proposals = append(proposals, Proposal{
			Entity:         a.Entity,
			Kind:           "accrual_reversal",
			Amount:         a.AmountUSD.Neg(),
			Currency:       "USD",
			Narrative:      fmt.Sprintf("Reverse accrual %s (%s) in %s", a.ID, formatUSD(a.AmountUSD), next),
			ProposedPeriod: next.String(),
			PostState: map[string]string{
				"status":        domain.AccrualReversed,
				"reversal_date": next.String(),
			},
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
		Period:      period.String(),
		EntityScope: env.State.EntityScope,
		Exceptions:  exceptions,
		Proposals:   proposals,
		Summary: map[string]any{
			"exception_count":   int64(len(exceptions)),
			"total_flagged_abs": totalFlaggedAbs,
			"accruals":          int64(len(accruals)),
		},
		InputRowIDs: inputIDs,
	}, nil
}
