package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
	"github.com/rvanraamsdonk/closegate/internal/runstate"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

// testEnv builds a run state over ds and claims the namespace for the
// engine under test.
func testEnv(t *testing.T, namespace string, ds *dataset.Set, materiality map[string]decimal.Decimal) *Env {
	t.Helper()
	st := runstate.New(
		"run-test",
		domain.MustParsePeriod("2025-08"),
		domain.MustParsePeriod("2025-07"),
		[]string{"ENT_A", "ENT_B"},
		materiality,
		ds,
	)
	w, err := st.Writer(namespace)
	require.NoError(t, err)
	return &Env{State: st, Metrics: w, Upstream: map[string]*Artifact{}}
}

func reasons(a *Artifact) []string {
	out := make([]string, len(a.Exceptions))
	for i, e := range a.Exceptions {
		out[i] = e.Reason
	}
	return out
}
