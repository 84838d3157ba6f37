package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// AR reconciliation reason codes, in rule-declaration order.
const (
	ReasonAROverdue    = "ar_overdue"
	ReasonARAgedOver60 = "ar_aged_over_60"
)

// ARReconciliation flags receivable invoices that are overdue or aged
// beyond the cutoff. Mirrors the AP check without the duplicate-note
// rule, which only applies to payables.
type ARReconciliation struct{}

func (ARReconciliation) Name() string      { return NameAR }
func (ARReconciliation) Namespace() string { return "ar" }

func (e ARReconciliation) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.AR) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "ar_invoices"}
	}

	invoices := slices.Clone(ds.AR)
	slices.SortFunc(invoices, func(a, b domain.ARInvoice) int {
		return strings.Compare(a.ID, b.ID)
	})

	inputIDs := make([]string, 0, len(invoices))
	byCustomer := map[string][]Peer{}
	for _, inv := range invoices {
		inputIDs = append(inputIDs, inv.ID)
		key := inv.Entity + "|" + inv.Customer
		byCustomer[key] = append(byCustomer[key], Peer{
			ID:     inv.ID,
			Amount: inv.Amount,
			Days:   int64(inv.AgeDays),
		})
	}

	var (
		exceptions      []Exception
		totalFlaggedAbs = decimal.Zero
	)
	for _, inv := range invoices {
		reason, rationale := arReason(inv)
		if reason == "" {
			continue
		}
		totalFlaggedAbs = totalFlaggedAbs.Add(inv.Amount.Abs())
		exceptions = append(exceptions, Exception{
			Entity:      inv.Entity,
			Identifiers: []string{inv.ID},
			Amount:      inv.Amount,
			Currency:    inv.Currency,
			Reason:      reason,
			Rationale:   rationale,
			Candidates: scorePeers(
				Peer{ID: inv.ID, Amount: inv.Amount, Days: int64(inv.AgeDays)},
				byCustomer[inv.Entity+"|"+inv.Customer],
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
			"invoices":          int64(len(invoices)),
		},
		InputRowIDs: inputIDs,
	}, nil
}

func arReason(inv domain.ARInvoice) (string, string) {
	switch {
	case inv.Status == "Overdue":
		return ReasonAROverdue, fmt.Sprintf("invoice %s is overdue at %d days", inv.ID, inv.AgeDays)
	case inv.AgeDays > agedDaysLimit:
		return ReasonARAgedOver60, fmt.Sprintf("invoice %s aged %d days, limit %d", inv.ID, inv.AgeDays, agedDaysLimit)
	}
	return "", ""
}
