package gate

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
	"github.com/rvanraamsdonk/closegate/internal/engine"
	"github.com/rvanraamsdonk/closegate/internal/runstate"
)

func stageEnv(t *testing.T, namespace string) (*runstate.State, *engine.Env) {
	t.Helper()
	st := runstate.New(
		"run-test",
		domain.MustParsePeriod("2025-08"),
		domain.MustParsePeriod("2025-07"),
		[]string{"ENT_A"},
		nil,
		&dataset.Set{},
	)
	w, err := st.Writer(namespace)
	require.NoError(t, err)
	return st, &engine.Env{State: st, Metrics: w}
}

func seed(t *testing.T, st *runstate.State, namespace string, write func(*runstate.MetricWriter)) {
	t.Helper()
	w, err := st.Writer(namespace)
	require.NoError(t, err)
	write(w)
}

func TestGatekeeper_ReadsStateAndWritesDecision(t *testing.T) {
	st, env := stageEnv(t, "gate")
	seed(t, st, "fx", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetInt("diff_count", 2))
		require.NoError(t, w.SetDec("total_abs_diff", decimal.NewFromInt(80000)))
		require.NoError(t, w.SetBool("coverage_ok", true))
	})
	seed(t, st, "tb", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetBool("balanced_by_entity", true))
	})
	seed(t, st, "bank", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetInt("exception_count", 1))
		require.NoError(t, w.SetDec("total_flagged_abs", decimal.NewFromInt(1000)))
	})

	art, err := Gatekeeper{}.Run(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, RiskMedium, st.Str("gate.risk_level"))
	blocked, ok := st.Bool("gate.block_close")
	require.True(t, ok)
	assert.True(t, blocked, "two sources with net above materiality")
	assert.Equal(t, int64(2), st.Int("gate.sources_triggered"))
	assert.True(t, st.Dec("gate.net_exposure").Equal(decimal.NewFromInt(81000)))
	require.Len(t, art.Rows, 8)
}

func TestGatekeeper_FailedEngineForcesHigh(t *testing.T) {
	st, env := stageEnv(t, "gate")
	seed(t, st, "fx", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetBool("coverage_ok", true))
	})
	seed(t, st, "tb", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetBool("balanced_by_entity", true))
	})
	seed(t, st, "flux", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetBool("failed", true))
	})

	art, err := Gatekeeper{}.Run(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, RiskHigh, st.Str("gate.risk_level"))
	assert.Equal(t, []string{"flux"}, art.Summary["failed_engines"])
}

func TestCatalogue_LoadsEmbeddedYAML(t *testing.T) {
	catalogue, err := Catalogue()
	require.NoError(t, err)
	require.NotEmpty(t, catalogue)

	seen := map[string]bool{}
	for _, c := range catalogue {
		assert.NotEmpty(t, c.MetricKey)
		assert.NotEmpty(t, c.ControlID)
		assert.NotEmpty(t, c.Description)
		assert.False(t, seen[c.MetricKey], "duplicate catalogue key %s", c.MetricKey)
		seen[c.MetricKey] = true
	}
}

func TestControlsMapper_EmitsOnlyPresentKeys(t *testing.T) {
	st, env := stageEnv(t, "controls")
	seed(t, st, "fx", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetBool("coverage_ok", true))
		require.NoError(t, w.SetInt("diff_count", 3))
	})
	seed(t, st, "tb", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetBool("balanced_by_entity", false))
	})

	art, err := ControlsMapper{}.Run(context.Background(), env)
	require.NoError(t, err)

	require.Len(t, art.Rows, 3)
	assert.Equal(t, "FXR-01", art.Rows[0]["control_id"])
	assert.Equal(t, int64(3), st.Int("controls.mapped_count"))
}

func TestCloseReporter_AssemblesManifest(t *testing.T) {
	st, env := stageEnv(t, "report")
	seed(t, st, "fx", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetInt("diff_count", 1))
		require.NoError(t, w.SetStr("artifact_uri", "artifacts/fx_translation.json"))
	})
	seed(t, st, "gate", func(w *runstate.MetricWriter) {
		require.NoError(t, w.SetStr("risk_level", RiskLow))
		require.NoError(t, w.SetBool("block_close", false))
	})

	art, err := CloseReporter{AuditLogURI: "artifacts/audit.jsonl"}.Run(context.Background(), env)
	require.NoError(t, err)

	artifacts, ok := art.Summary["artifacts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "artifacts/fx_translation.json", artifacts["fx_artifact"])
	assert.Equal(t, "artifacts/audit.jsonl", art.Summary["audit_log"])

	summary, ok := art.Summary["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RiskLow, summary["risk_level"])
	counts, ok := summary["key_counts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), counts["fx"])
}
