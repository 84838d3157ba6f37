package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
)

func TestAutoRemediation_SubThresholdFXDiff(t *testing.T) {
	env := testEnv(t, "remediation", &dataset.Set{}, map[string]decimal.Decimal{"ENT_A": dec(t, "1000")})
	env.Upstream[NameFX] = &Artifact{
		Name: NameFX,
		Rows: []map[string]any{
			{"entity": "ENT_A", "row_id": "ENT_A|1000", "diff": dec(t, "-420.50")},
			{"entity": "ENT_A", "row_id": "ENT_A|2000", "diff": dec(t, "0")},
			{"entity": "ENT_A", "row_id": "ENT_A|3000", "diff": dec(t, "5000.00")},
		},
	}

	art, err := AutoRemediation{}.Run(context.Background(), env)
	require.NoError(t, err)

	require.Len(t, art.Proposals, 1)
	p := art.Proposals[0]
	assert.Equal(t, "fx_translation_adjustment", p.Kind)
	assert.True(t, p.Approved)
	require.Len(t, p.Lines, 2)
	// Negative diff credits the adjustment account.
	assert.Equal(t, "Cumulative Translation Adjustment", p.Lines[0].Account)
	assert.True(t, p.Lines[0].Debit.Equal(dec(t, "420.50")))
	assert.True(t, p.Lines[1].Credit.Equal(dec(t, "420.50")))

	assert.True(t, env.State.Dec("remediation.auto_total").Equal(dec(t, "420.50")))
}

func TestAutoRemediation_PositiveFluxBudgetVarianceOnly(t *testing.T) {
	env := testEnv(t, "remediation", &dataset.Set{}, map[string]decimal.Decimal{"ENT_A": dec(t, "1000")})
	env.Upstream[NameFlux] = &Artifact{
		Name: NameFlux,
		Rows: []map[string]any{
			{"entity": "ENT_A", "account": "6000", "var_vs_budget": dec(t, "600")},
			{"entity": "ENT_A", "account": "6100", "var_vs_budget": dec(t, "-600")},
			{"entity": "ENT_A", "account": "6200", "var_vs_budget": dec(t, "2500")},
		},
	}

	art, err := AutoRemediation{}.Run(context.Background(), env)
	require.NoError(t, err)

	require.Len(t, art.Proposals, 1)
	assert.Equal(t, "flux_true_up", art.Proposals[0].Kind)
	assert.Equal(t, []string{"ENT_A|6000"}, art.InputRowIDs)
	assert.Equal(t, int64(1), env.State.Int("remediation.proposal_count"))
}

func TestAutoRemediation_NoUpstreamArtifacts(t *testing.T) {
	env := testEnv(t, "remediation", &dataset.Set{}, nil)

	art, err := AutoRemediation{}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Empty(t, art.Proposals)
	assert.True(t, env.State.Dec("remediation.auto_total").IsZero())
}
