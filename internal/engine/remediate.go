package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AutoRemediation converts sub-threshold FX diffs and positive flux
// budget variances into pre-approved correcting proposals with balanced
// debit/credit lines. Totals are tracked separately so the gatekeeper
// can net them against gross exposure.
type AutoRemediation struct{}

func (AutoRemediation) Name() string      { return NameRemediation }
func (AutoRemediation) Namespace() string { return "remediation" }

func (e AutoRemediation) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		proposals []Proposal
		inputIDs  []string
		autoTotal = decimal.Zero
	)

	if fx := env.Upstream[NameFX]; fx != nil {
		for _, row := range fx.Rows {
			entity, _ := row["entity"].(string)
			rowID, _ := row["row_id"].(string)
			diff, ok := row["diff"].(decimal.Decimal)
			if !ok || diff.IsZero() || diff.Abs().GreaterThan(env.State.Threshold(entity)) {
				continue
			}
			inputIDs = append(inputIDs, rowID)
			autoTotal = autoTotal.Add(diff.Abs())
			proposals = append(proposals, Proposal{
				Entity:    entity,
				Kind:      "fx_translation_adjustment",
				Amount:    diff,
				Currency:  "USD",
				Narrative: fmt.Sprintf("Book %s translation adjustment for %s", formatUSD(diff), rowID),
				Approved:  true,
				Lines:     balancedLines("FX Translation Adjustment", "Cumulative Translation Adjustment", diff),
			})
		}
	}

	if flux := env.Upstream[NameFlux]; flux != nil {
		for _, row := range flux.Rows {
			entity, _ := row["entity"].(string)
			account, _ := row["account"].(string)
			v, ok := row["var_vs_budget"].(decimal.Decimal)
			if !ok || !v.IsPositive() || v.GreaterThan(env.State.Threshold(entity)) {
				continue
			}
			rowID := entity + "|" + account
			inputIDs = append(inputIDs, rowID)
			autoTotal = autoTotal.Add(v)
			proposals = append(proposals, Proposal{
				Entity:    entity,
				Kind:      "flux_true_up",
				Amount:    v,
				Currency:  "USD",
				Narrative: fmt.Sprintf("Accrue %s against %s budget variance", formatUSD(v), account),
				Approved:  true,
				Lines:     balancedLines(account, "Accrued Liabilities", v),
			})
		}
	}

	autoTotal = round2(autoTotal)

	w := env.Metrics
	if err := w.SetInt("proposal_count", int64(len(proposals))); err != nil {
		return nil, err
	}
	if err := w.SetDec("auto_total", autoTotal); err != nil {
		return nil, err
	}

	return &Artifact{
		Name:        e.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Proposals:   proposals,
		Summary: map[string]any{
			"proposal_count": int64(len(proposals)),
			"auto_total":     autoTotal,
		},
		InputRowIDs: inputIDs,
	}, nil
}

// balancedLines builds the two-sided entry for an adjustment of amount.
// A positive amount debits the target account; negative flips sides.
func balancedLines(target, offset string, amount decimal.Decimal) []Line {
	abs := round2(amount.Abs())
	if amount.IsNegative() {
		return []Line{
			{Account: offset, Debit: abs},
			{Account: target, Credit: abs},
		}
	}
	return []Line{
		{Account: target, Debit: abs},
		{Account: offset, Credit: abs},
	}
}
