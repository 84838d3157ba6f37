package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// FXTolerance is the fixed rounding tolerance for translated balances.
// A policy constant, not configurable per call, so diffs are comparable
// across runs.
var FXTolerance = decimal.RequireFromString("0.01")

// ReasonFXTranslationDiff is the FX engine's single reason code.
const ReasonFXTranslationDiff = "fx_translation_diff"

// FXTranslation recomputes the USD translation of every trial-balance
// line from period-end rates and flags rows whose reported USD deviates
// beyond FXTolerance. A currency with no rate excludes its rows from
// computed totals and flips the coverage metric instead of failing.
type FXTranslation struct{}

func (FXTranslation) Name() string      { return NameFX }
func (FXTranslation) Namespace() string { return "fx" }

func (e FXTranslation) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.TrialBalance) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "trial_balance"}
	}

	lines := slices.Clone(ds.TrialBalance)
	slices.SortFunc(lines, func(a, b domain.TBLine) int {
		return strings.Compare(a.RowID(), b.RowID())
	})

	var (
		rows       []map[string]any
		exceptions []Exception
		inputIDs   []string

		missingCurrencies []string
		diffCount         int64
		totalAbsDiff      = decimal.Zero
		countByEntity     = map[string]int64{}
		absByEntity       = map[string]decimal.Decimal{}
	)

	for _, l := range lines {
		inputIDs = append(inputIDs, l.RowID())

		rate, ok := ds.Rate(l.Currency)
		if !ok {
			// Rate coverage gap: row excluded from computed totals.
			if !slices.Contains(missingCurrencies, l.Currency) {
				missingCurrencies = append(missingCurrencies, l.Currency)
			}
			rows = append(rows, map[string]any{
				"row_id":        l.RowID(),
				"entity":        l.Entity,
				"account":       l.Account,
				"currency":      l.Currency,
				"balance_local": l.BalanceLocal,
				"reported_usd":  l.ReportedUSD,
				"rate_missing":  true,
			})
			continue
		}

		computed := round2(l.BalanceLocal.Mul(rate))
		diff := round2(computed.Sub(l.ReportedUSD))

		rows = append(rows, map[string]any{
			"row_id":        l.RowID(),
			"entity":        l.Entity,
			"account":       l.Account,
			"currency":      l.Currency,
			"balance_local": l.BalanceLocal,
			"computed_usd":  computed,
			"reported_usd":  l.ReportedUSD,
			"diff":          diff,
		})

		if diff.Abs().GreaterThan(FXTolerance) {
			diffCount++
			totalAbsDiff = totalAbsDiff.Add(diff.Abs())
			countByEntity[l.Entity]++
			absByEntity[l.Entity] = absByEntity[l.Entity].Add(diff.Abs())

			exceptions = append(exceptions, Exception{
				Entity:      l.Entity,
				Identifiers: []string{l.RowID()},
				Amount:      diff,
				Currency:    "USD",
				Reason:      ReasonFXTranslationDiff,
				Rationale: fmt.Sprintf("computed %s from %s %s at rate %s, reported %s",
					computed, l.BalanceLocal, l.Currency, rate, l.ReportedUSD),
			})
		}
	}

	slices.Sort(missingCurrencies)
	coverageOK := len(missingCurrencies) == 0

	byEntity := map[string]any{}
	for entity, n := range countByEntity {
		byEntity[entity] = map[string]any{
			"diff_count":     n,
			"total_abs_diff": absByEntity[entity],
		}
	}

	w := env.Metrics
	if err := w.SetInt("diff_count", diffCount); err != nil {
		return nil, err
	}
	if err := w.SetDec("total_abs_diff", totalAbsDiff); err != nil {
		return nil, err
	}
	if err := w.SetBool("coverage_ok", coverageOK); err != nil {
		return nil, err
	}
	if err := w.SetInt("rows", int64(len(rows))); err != nil {
		return nil, err
	}

	return &Artifact{
		Name:        e.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Rows:        rows,
		Exceptions:  exceptions,
		Summary: map[string]any{
			"diff_count":         diffCount,
			"total_abs_diff":     totalAbsDiff,
			"coverage_ok":        coverageOK,
			"missing_currencies": missingCurrencies,
			"by_entity":          byEntity,
		},
		InputRowIDs: inputIDs,
	}, nil
}
