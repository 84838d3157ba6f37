package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// Journal governance reason codes. Unlike the subledger checks, every
// matching rule fires: one entry can carry several exceptions.
const (
	ReasonJERejected       = "approval_rejected"
	ReasonJEPending        = "approval_pending"
	ReasonJEMissingSupport = "manual_missing_support"
	ReasonJEReversal       = "reversal_flagged"
	ReasonJEFourEyes       = "four_eyes_breach"
)

const jeApproved = "Approved"

// JEGovernance applies segregation-of-duties and documentation checks
// to every journal entry.
type JEGovernance struct{}

func (JEGovernance) Name() string      { return NameJournal }
func (JEGovernance) Namespace() string { return "je" }

func (e JEGovernance) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.Journal) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "journal_entries"}
	}

	entries := slices.Clone(ds.Journal)
	slices.SortFunc(entries, func(a, b domain.JournalEntry) int {
		return strings.Compare(a.ID, b.ID)
	})

	var (
		inputIDs        []string
		exceptions      []Exception
		totalFlaggedAbs = decimal.Zero
	)
	for _, je := range entries {
		inputIDs = append(inputIDs, je.ID)

		var reasons []string
		var rationales []string
		if je.ApprovalStatus != jeApproved {
			if je.ApprovalStatus == "Rejected" {
				reasons = append(reasons, ReasonJERejected)
				rationales = append(rationales, fmt.Sprintf("entry %s was rejected", je.ID))
			} else {
				reasons = append(reasons, ReasonJEPending)
				rationales = append(rationales, fmt.Sprintf("entry %s awaits approval", je.ID))
			}
		}
		if strings.EqualFold(je.Source, "manual") && strings.TrimSpace(je.SupportingDoc) == "" {
			reasons = append(reasons, ReasonJEMissingSupport)
			rationales = append(rationales, fmt.Sprintf("manual entry %s has no supporting document", je.ID))
		}
		if je.Reversal {
			reasons = append(reasons, ReasonJEReversal)
			rationales = append(rationales, fmt.Sprintf("entry %s is a reversal", je.ID))
		}
		if je.AmountUSD.Abs().GreaterThan(env.State.Threshold(je.Entity)) &&
			(je.ApprovalStatus != jeApproved || strings.TrimSpace(je.Approver) == "") {
			reasons = append(reasons, ReasonJEFourEyes)
			rationales = append(rationales, fmt.Sprintf("entry %s of %s lacks independent approval",
				je.ID, formatUSD(je.AmountUSD)))
		}

		if len(reasons) == 0 {
			continue
		}
		totalFlaggedAbs = totalFlaggedAbs.Add(je.AmountUSD.Abs())
		for i, reason := range reasons {
			exceptions = append(exceptions, Exception{
				Entity:      je.Entity,
				Identifiers: []string{je.ID},
				Amount:      je.AmountUSD,
				Currency:    "USD",
				Reason:      reason,
				Rationale:   rationales[i],
			})
		}
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
			"entries":           int64(len(entries)),
		},
		InputRowIDs: inputIDs,
	}, nil
}
