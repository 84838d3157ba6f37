package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Flux analysis reason codes. Budget variance is checked before prior
// variance; an aggregate breaching both is flagged once, for budget.
const (
	ReasonFluxBudgetVariance = "flux_budget_variance"
	ReasonFluxPriorVariance  = "flux_prior_variance"
)

var hundred = decimal.NewFromInt(100)

// FluxAnalysis aggregates actuals against budget and prior period by
// (entity, account) and flags variances above the entity threshold.
type FluxAnalysis struct{}

func (FluxAnalysis) Name() string      { return NameFlux }
func (FluxAnalysis) Namespace() string { return "flux" }

type fluxAggregate struct {
	entity, account      string
	actual, budget, prio decimal.Decimal
}

func (e FluxAnalysis) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.Flux) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "flux"}
	}

	byKey := map[string]*fluxAggregate{}
	var inputIDs []string
	for _, r := range ds.Flux {
		inputIDs = append(inputIDs, r.RowID())
		agg, ok := byKey[r.RowID()]
		if !ok {
			agg = &fluxAggregate{entity: r.Entity, account: r.Account}
			byKey[r.RowID()] = agg
		}
		agg.actual = agg.actual.Add(r.ActualUSD)
		agg.budget = agg.budget.Add(r.BudgetUSD)
		agg.prio = agg.prio.Add(r.PriorUSD)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var (
		rows            []map[string]any
		exceptions      []Exception
		totalFlaggedAbs = decimal.Zero
	)
	for _, key := range keys {
		agg := byKey[key]
		varBudget := round2(agg.actual.Sub(agg.budget))
		varPrior := round2(agg.actual.Sub(agg.prio))

		row := map[string]any{
			"entity":        agg.entity,
			"account":       agg.account,
			"actual_usd":    round2(agg.actual),
			"budget_usd":    round2(agg.budget),
			"prior_usd":     round2(agg.prio),
			"var_vs_budget": varBudget,
			"var_vs_prior":  varPrior,
		}
		// Percentages are omitted, not faked, on a zero denominator.
		if !agg.budget.IsZero() {
			row["var_vs_budget_pct"] = varBudget.Mul(hundred).DivRound(agg.budget.Abs(), 2)
		}
		if !agg.prio.IsZero() {
			row["var_vs_prior_pct"] = varPrior.Mul(hundred).DivRound(agg.prio.Abs(), 2)
		}
		rows = append(rows, row)

		threshold := env.State.Threshold(agg.entity)
		var reason string
		var variance decimal.Decimal
		switch {
		case varBudget.Abs().GreaterThan(threshold):
			reason, variance = ReasonFluxBudgetVariance, varBudget
		case varPrior.Abs().GreaterThan(threshold):
			reason, variance = ReasonFluxPriorVariance, varPrior
		default:
			continue
		}

		totalFlaggedAbs = totalFlaggedAbs.Add(variance.Abs())
		exceptions = append(exceptions, Exception{
			Entity:      agg.entity,
			Identifiers: []string{key},
			Amount:      variance,
			Currency:    "USD",
			Reason:      reason,
			Rationale: fmt.Sprintf("%s %s variance %s exceeds threshold %s",
				agg.entity, agg.account, variance, threshold),
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
		Rows:        rows,
		Exceptions:  exceptions,
		Summary: map[string]any{
			"exception_count":   int64(len(exceptions)),
			"total_flagged_abs": totalFlaggedAbs,
			"aggregates":        int64(len(rows)),
		},
		InputRowIDs: inputIDs,
	}, nil
}
