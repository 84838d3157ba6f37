package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
)

func bankTxn(t *testing.T, id, entity, date, amount, counterparty string) domain.BankTxn {
	t.Helper()
	return domain.BankTxn{
		ID:           id,
		Entity:       entity,
		Date:         day(t, date),
		Amount:       dec(t, amount),
		Currency:     "USD",
		Counterparty: counterparty,
		Type:         "payment",
	}
}

// A signature group of size N yields exactly N-1 duplicate_candidate
// entries, each referencing the group's minimum-identifier row.
func TestBankReconciliation_DuplicateGroupFlagsAllButPrimary(t *testing.T) {
	ds := &dataset.Set{Bank: []domain.BankTxn{
		bankTxn(t, "TXN_003", "ENT_A", "2025-08-10", "1200.00", "Acme"),
		bankTxn(t, "TXN_001", "ENT_A", "2025-08-10", "1200.00", "Acme"),
		bankTxn(t, "TXN_002", "ENT_A", "2025-08-10", "1200.00", "Acme"),
		bankTxn(t, "TXN_004", "ENT_A", "2025-08-10", "999.00", "Acme"),
	}}
	env := testEnv(t, "bank", ds, nil)

	art, err := BankReconciliation{}.Run(context.Background(), env)
	require.NoError(t, err)

	var dups []Exception
	for _, e := range art.Exceptions {
		if e.Reason == ReasonDuplicateCandidate {
			dups = append(dups, e)
		}
	}
	require.Len(t, dups, 2)
	assert.Equal(t, []string{"TXN_002", "TXN_001"}, dups[0].Identifiers)
	assert.Equal(t, []string{"TXN_003", "TXN_001"}, dups[1].Identifiers)
	assert.Equal(t, int64(2), env.State.Int("bank.duplicate_count"))
}

func TestBankReconciliation_TimingWithinWindow(t *testing.T) {
	ds := &dataset.Set{Bank: []domain.BankTxn{
		bankTxn(t, "TXN_010", "ENT_A", "2025-08-05", "750.00", "Globex"),
		bankTxn(t, "TXN_011", "ENT_A", "2025-08-07", "750.00", "Globex"),
		bankTxn(t, "TXN_012", "ENT_A", "2025-08-20", "750.00", "Globex"),
	}}
	env := testEnv(t, "bank", ds, nil)

	art, err := BankReconciliation{}.Run(context.Background(), env)
	require.NoError(t, err)

	require.Len(t, art.Exceptions, 1)
	e := art.Exceptions[0]
	assert.Equal(t, ReasonTimingCandidate, e.Reason)
	// Later transaction references the earlier match.
	assert.Equal(t, []string{"TXN_011", "TXN_010"}, e.Identifiers)
	assert.Equal(t, int64(1), env.State.Int("bank.timing_count"))
}

func TestBankReconciliation_WindowIsConfigurable(t *testing.T) {
	ds := &dataset.Set{Bank: []domain.BankTxn{
		bankTxn(t, "TXN_010", "ENT_A", "2025-08-05", "750.00", "Globex"),
		bankTxn(t, "TXN_011", "ENT_A", "2025-08-12", "750.00", "Globex"),
	}}
	env := testEnv(t, "bank", ds, nil)

	art, err := BankReconciliation{WindowDays: 7}.Run(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, art.Exceptions, 1)
	assert.Equal(t, ReasonTimingCandidate, art.Exceptions[0].Reason)
}

// Duplicate and timing tags on the same transaction stay independent
// entries, never merged.
func TestBankReconciliation_DuplicateAndTimingAreIndependent(t *testing.T) {
	ds := &dataset.Set{Bank: []domain.BankTxn{
		bankTxn(t, "TXN_020", "ENT_A", "2025-08-01", "500.00", "Initech"),
		bankTxn(t, "TXN_021", "ENT_A", "2025-08-03", "500.00", "Initech"),
		bankTxn(t, "TXN_022", "ENT_A", "2025-08-03", "500.00", "Initech"),
	}}
	env := testEnv(t, "bank", ds, nil)

	art, err := BankReconciliation{}.Run(context.Background(), env)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, e := range art.Exceptions {
		counts[e.Reason]++
	}
	assert.Equal(t, 1, counts[ReasonDuplicateCandidate], "TXN_022 duplicates TXN_021")
	assert.Equal(t, 2, counts[ReasonTimingCandidate], "both day-3 txns trail TXN_020")
}

func TestBankReconciliation_HintsAreCappedAndSorted(t *testing.T) {
	ds := &dataset.Set{Bank: []domain.BankTxn{
		bankTxn(t, "TXN_030", "ENT_A", "2025-08-10", "100.00", "Acme"),
		bankTxn(t, "TXN_031", "ENT_A", "2025-08-10", "100.00", "Acme"),
		bankTxn(t, "TXN_032", "ENT_A", "2025-08-11", "100.00", "Other"),
		bankTxn(t, "TXN_033", "ENT_A", "2025-08-15", "103.00", "Other"),
		bankTxn(t, "TXN_034", "ENT_A", "2025-08-20", "250.00", "Other"),
	}}
	env := testEnv(t, "bank", ds, nil)

	art, err := BankReconciliation{}.Run(context.Background(), env)
	require.NoError(t, err)
	require.NotEmpty(t, art.Exceptions)

	hints := art.Exceptions[0].Candidates
	require.LessOrEqual(t, len(hints), 3)
	for i := 1; i < len(hints); i++ {
		assert.True(t, hints[i].Score.LessThanOrEqual(hints[i-1].Score))
	}
}
