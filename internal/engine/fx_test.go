package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
)

func TestFXTranslation_FlagsBeyondTolerance(t *testing.T) {
	ds := &dataset.Set{
		TrialBalance: []domain.TBLine{
			// 1000 * 1.10 = 1100.00, reported 1100.00 -> no diff
			{Entity: "ENT_A", Account: "1000", Currency: "EUR", BalanceLocal: dec(t, "1000"), ReportedUSD: dec(t, "1100.00")},
			// 1000 * 1.10 = 1100.00, reported 1100.01 -> diff -0.01, within tolerance
			{Entity: "ENT_A", Account: "2000", Currency: "EUR", BalanceLocal: dec(t, "1000"), ReportedUSD: dec(t, "1100.01")},
			// 1000 * 1.10 = 1100.00, reported 1125.50 -> diff -25.50, flagged
			{Entity: "ENT_B", Account: "3000", Currency: "EUR", BalanceLocal: dec(t, "1000"), ReportedUSD: dec(t, "1125.50")},
		},
		Rates: []domain.FXRate{{Currency: "EUR", RateUSD: dec(t, "1.10")}},
	}
	env := testEnv(t, "fx", ds, nil)

	art, err := FXTranslation{}.Run(context.Background(), env)
	require.NoError(t, err)

	require.Len(t, art.Exceptions, 1)
	assert.Equal(t, ReasonFXTranslationDiff, art.Exceptions[0].Reason)
	assert.Equal(t, []string{"ENT_B|3000"}, art.Exceptions[0].Identifiers)
	assert.True(t, art.Exceptions[0].Amount.Equal(dec(t, "-25.50")))

	assert.Equal(t, int64(1), env.State.Int("fx.diff_count"))
	assert.True(t, env.State.Dec("fx.total_abs_diff").Equal(dec(t, "25.50")))
	ok, present := env.State.Bool("fx.coverage_ok")
	require.True(t, present)
	assert.True(t, ok)
}

// Exception iff abs(round(local*rate,2) - reported) > 0.01, row by row.
func TestFXTranslation_ToleranceProperty(t *testing.T) {
	ds := &dataset.Set{
		TrialBalance: []domain.TBLine{
			{Entity: "E", Account: "1", Currency: "EUR", BalanceLocal: dec(t, "333.333"), ReportedUSD: dec(t, "366.67")},
			{Entity: "E", Account: "2", Currency: "EUR", BalanceLocal: dec(t, "333.333"), ReportedUSD: dec(t, "366.68")},
			{Entity: "E", Account: "3", Currency: "EUR", BalanceLocal: dec(t, "333.333"), ReportedUSD: dec(t, "366.69")},
			{Entity: "E", Account: "4", Currency: "USD", BalanceLocal: dec(t, "500"), ReportedUSD: dec(t, "500.00")},
		},
		Rates: []domain.FXRate{{Currency: "EUR", RateUSD: dec(t, "1.10")}},
	}
	env := testEnv(t, "fx", ds, nil)

	art, err := FXTranslation{}.Run(context.Background(), env)
	require.NoError(t, err)

	rate, _ := ds.Rate("EUR")
	flagged := map[string]bool{}
	for _, e := range art.Exceptions {
		flagged[e.Identifiers[0]] = true
	}
	for _, l := range ds.TrialBalance {
		r := rate
		if l.Currency == "USD" {
			r = dec(t, "1")
		}
		diff := l.BalanceLocal.Mul(r).Round(2).Sub(l.ReportedUSD).Round(2)
		want := diff.Abs().GreaterThan(FXTolerance)
		assert.Equal(t, want, flagged[l.RowID()], "row %s", l.RowID())
	}
}

func TestFXTranslation_MissingRateIsCoverageGapNotCrash(t *testing.T) {
	ds := &dataset.Set{
		TrialBalance: []domain.TBLine{
			{Entity: "ENT_A", Account: "1000", Currency: "XOF", BalanceLocal: dec(t, "5000"), ReportedUSD: dec(t, "8.20")},
			{Entity: "ENT_A", Account: "2000", Currency: "USD", BalanceLocal: dec(t, "100"), ReportedUSD: dec(t, "100.00")},
		},
	}
	env := testEnv(t, "fx", ds, nil)

	art, err := FXTranslation{}.Run(context.Background(), env)
	require.NoError(t, err)

	ok, present := env.State.Bool("fx.coverage_ok")
	require.True(t, present)
	assert.False(t, ok)
	assert.Equal(t, []string{"XOF"}, art.Summary["missing_currencies"])
	assert.Empty(t, art.Exceptions)

	require.Len(t, art.Rows, 2)
	assert.Equal(t, true, art.Rows[0]["rate_missing"])
}

func TestFXTranslation_NoTrialBalanceIsSchemaGap(t *testing.T) {
	env := testEnv(t, "fx", &dataset.Set{}, nil)
	_, err := FXTranslation{}.Run(context.Background(), env)
	assert.True(t, IsSchemaGap(err))
}
