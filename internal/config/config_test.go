package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
close: {
	period:       "2025-08"
	entity_scope: ["ENT_A", "ENT_B"]
	materiality: {
		ENT_A: "50000"
		ENT_B: "25000.50"
	}
	timing_window_days: 5
	data_dir:           "testdata/period"
}
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig), "close.cue")
	require.NoError(t, err)

	assert.Equal(t, "2025-08", cfg.Period.String())
	assert.Equal(t, "2025-07", cfg.PriorPeriod.String(), "prior defaults to previous month")
	assert.Equal(t, []string{"ENT_A", "ENT_B"}, cfg.EntityScope)
	assert.Equal(t, 5, cfg.TimingWindowDays)
	assert.Equal(t, "testdata/period", cfg.DataDir)

	require.Len(t, cfg.Materiality, 2)
	assert.Equal(t, "25000.5", cfg.Materiality["ENT_B"].String())
}

func TestParse_ExplicitPriorPeriod(t *testing.T) {
	src := `
close: {
	period:       "2026-01"
	prior_period: "2025-12"
	entity_scope: ["ENT_A"]
}
`
	cfg, err := Parse([]byte(src), "close.cue")
	require.NoError(t, err)
	assert.Equal(t, "2025-12", cfg.PriorPeriod.String())
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name, src, wantErr string
	}{
		{
			name:    "missing close struct",
			src:     `other: {}`,
			wantErr: "missing top-level close struct",
		},
		{
			name:    "missing period",
			src:     `close: {entity_scope: ["ENT_A"]}`,
			wantErr: "close.period is required",
		},
		{
			name:    "bad period format",
			src:     `close: {period: "August 2025", entity_scope: ["ENT_A"]}`,
			wantErr: "close.period",
		},
		{
			name:    "empty entity scope",
			src:     `close: {period: "2025-08", entity_scope: []}`,
			wantErr: "entity_scope is empty",
		},
		{
			name:    "materiality as float",
			src:     `close: {period: "2025-08", entity_scope: ["ENT_A"], materiality: {ENT_A: 50000.0}}`,
			wantErr: "decimal string required",
		},
		{
			name:    "negative materiality",
			src:     `close: {period: "2025-08", entity_scope: ["ENT_A"], materiality: {ENT_A: "-10"}}`,
			wantErr: "must be positive",
		},
		{
			name:    "zero timing window",
			src:     `close: {period: "2025-08", entity_scope: ["ENT_A"], timing_window_days: 0}`,
			wantErr: "at least 1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "close.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "close.cue")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2025-08", cfg.Period.String())

	_, err = Load(filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
}
