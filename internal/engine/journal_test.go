package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
)

func TestJEGovernance_AllMatchingRulesFire(t *testing.T) {
	ds := &dataset.Set{Journal: []domain.JournalEntry{
		// Pending, manual without support, above materiality: three
		// independent exceptions for one entry.
		{ID: "JE_001", Entity: "ENT_A", AmountUSD: dec(t, "250000"),
			Source: "Manual", ApprovalStatus: "Pending"},
	}}
	env := testEnv(t, "je", ds, map[string]decimal.Decimal{"ENT_A": dec(t, "50000")})

	art, err := JEGovernance{}.Run(context.Background(), env)
	require.NoError(t, err)

	require.Equal(t, []string{ReasonJEPending, ReasonJEMissingSupport, ReasonJEFourEyes}, reasons(art))
	// One entry, three exceptions, flagged magnitude counted once.
	assert.True(t, env.State.Dec("je.total_flagged_abs").Equal(dec(t, "250000")))
}

func TestJEGovernance_FourEyesFiresRegardlessOfOtherFlags(t *testing.T) {
	ds := &dataset.Set{Journal: []domain.JournalEntry{
		{ID: "JE_010", Entity: "ENT_A", AmountUSD: dec(t, "250000"),
			Source: "System", ApprovalStatus: "Rejected", SupportingDoc: "doc-1"},
	}}
	env := testEnv(t, "je", ds, map[string]decimal.Decimal{"ENT_A": dec(t, "50000")})

	art, err := JEGovernance{}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, reasons(art), ReasonJEFourEyes)
	assert.Contains(t, reasons(art), ReasonJERejected)
}

func TestJEGovernance_ApprovedWithApproverIsClean(t *testing.T) {
	ds := &dataset.Set{Journal: []domain.JournalEntry{
		{ID: "JE_020", Entity: "ENT_A", AmountUSD: dec(t, "250000"),
			Source: "System", ApprovalStatus: "Approved", Approver: "controller@corp"},
		{ID: "JE_021", Entity: "ENT_A", AmountUSD: dec(t, "250000"),
			Source: "System", ApprovalStatus: "Approved"},
	}}
	env := testEnv(t, "je", ds, map[string]decimal.Decimal{"ENT_A": dec(t, "50000")})

	art, err := JEGovernance{}.Run(context.Background(), env)
	require.NoError(t, err)

	// Approved but approver blank: still a segregation breach above
	// materiality.
	require.Equal(t, []string{ReasonJEFourEyes}, reasons(art))
	assert.Equal(t, []string{"JE_021"}, art.Exceptions[0].Identifiers)
}

func TestJEGovernance_ReversalFlag(t *testing.T) {
	ds := &dataset.Set{Journal: []domain.JournalEntry{
		{ID: "JE_030", Entity: "ENT_A", AmountUSD: dec(t, "100"),
			Source: "System", ApprovalStatus: "Approved", Approver: "a", Reversal: true},
	}}
	env := testEnv(t, "je", ds, nil)

	art, err := JEGovernance{}.Run(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, []string{ReasonJEReversal}, reasons(art))
}
