package engine

import (
	"context"

	"github.com/rvanraamsdonk/closegate/internal/runstate"
)

// Engine names as recorded in DeterministicRun ledger entries.
const (
	NameFX           = "fx_translation"
	NameTB           = "tb_diagnostics"
	NameBank         = "bank_reconciliation"
	NameAP           = "ap_reconciliation"
	NameAR           = "ar_reconciliation"
	NameIntercompany = "intercompany_reconciliation"
	NameAccrual      = "accrual_check"
	NameJournal      = "je_governance"
	NameFlux         = "flux_analysis"
	NameRemediation  = "auto_remediation"
)

// Env is what the orchestrator hands each engine: the shared Run State,
// a metric writer scoped to the engine's own namespace, and the
// finalized artifacts of upstream stages (read-only).
type Env struct {
	State    *runstate.State
	Metrics  *runstate.MetricWriter
	Upstream map[string]*Artifact
}

// Engine is one stage of the reconciliation pipeline.
type Engine interface {
	// Name is the stable stage identifier used in ledger records and
	// artifact URIs.
	Name() string

	// Namespace is the engine's metrics-key namespace. Namespaces are
	// disjoint across engines; the Run State enforces the claim.
	Namespace() string

	// Run executes the engine. It must not mutate source records or
	// upstream artifacts. A returned error aborts this engine only.
	Run(ctx context.Context, env *Env) (*Artifact, error)
}
