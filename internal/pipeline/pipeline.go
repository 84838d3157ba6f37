// Package pipeline runs the close: every rule engine in fixed order,
// then gatekeeping, controls mapping, and the close report. The
// orchestrator owns the Run State and the provenance ledger; stage
// order is a correctness requirement because downstream stages read
// metrics written upstream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/canonical"
	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
	"github.com/rvanraamsdonk/closegate/internal/engine"
	"github.com/rvanraamsdonk/closegate/internal/gate"
	"github.com/rvanraamsdonk/closegate/internal/ledger"
	"github.com/rvanraamsdonk/closegate/internal/runstate"
)

// Output file names. Artifact URIs in metrics, evidence records, and
// the manifest are these names, relative to the output directory.
const (
	AuditLogName = "audit.jsonl"
	ManifestName = "manifest.json"
)

// Options configures one close run.
type Options struct {
	// RunID identifies the run. Empty generates a fresh UUID.
	RunID string

	Period      domain.Period
	PriorPeriod domain.Period // zero defaults to Period.Prev()
	EntityScope []string
	Materiality map[string]decimal.Decimal
	Datasets    *dataset.Set

	// OutDir receives artifact JSON, the audit log, and the manifest.
	// Empty skips file output; artifacts stay in memory.
	OutDir string

	// Clock stamps artifacts and ledger records. Nil uses UTC wall time.
	// The clock never feeds content hashes.
	Clock func() time.Time

	// TimingWindowDays overrides the bank timing window when positive.
	TimingWindowDays int
}

// Result is the outcome of one close run.
type Result struct {
	RunID     string
	State     *runstate.State
	Ledger    *ledger.Ledger
	Artifacts map[string]*engine.Artifact

	// Decision is derived from the final Run State after every stage has
	// run. A failure in a terminal stage escalates it beyond the
	// gatekeeping-time gate.* metrics recorded in the manifest.
	Decision gate.Decision

	// RunHash is the domain-separated hash over every stage's output
	// hash, identifying the whole run's computed content.
	RunHash string
}

// Stages returns the pipeline's stage list in execution order.
func Stages(timingWindowDays int, auditLogURI string) []engine.Engine {
	return []engine.Engine{
		engine.FXTranslation{},
		engine.TBDiagnostics{},
		engine.BankReconciliation{WindowDays: timingWindowDays},
		engine.APReconciliation{},
		engine.ARReconciliation{},
		engine.ICReconciliation{},
		engine.AccrualCheck{},
		engine.JEGovernance{},
		engine.FluxAnalysis{},
		engine.AutoRemediation{},
		gate.Gatekeeper{},
		gate.ControlsMapper{},
		gate.CloseReporter{AuditLogURI: auditLogURI},
	}
}

// Run executes the full close pipeline. A failing engine never aborts
// the run: the failure lands in Run State and escalates the risk
// decision instead. Only context cancellation and output I/O errors
// abort.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Datasets == nil {
		return nil, errors.New("pipeline: datasets are required")
	}
	if opts.Period.IsZero() {
		return nil, errors.New("pipeline: period is required")
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	prior := opts.PriorPeriod
	if prior.IsZero() {
		prior = opts.Period.Prev()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	state := runstate.New(runID, opts.Period, prior, opts.EntityScope, opts.Materiality, opts.Datasets)
	led := ledger.New(clock)
	artifacts := map[string]*engine.Artifact{}

	for _, stage := range Stages(opts.TimingWindowDays, AuditLogName) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := state.Writer(stage.Namespace())
		if err != nil {
			return nil, err
		}

		art, err := runStage(ctx, stage, &engine.Env{State: state, Metrics: w, Upstream: artifacts})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if ferr := w.SetBool("failed", true); ferr != nil {
				return nil, ferr
			}
			if ferr := w.SetStr("failure", err.Error()); ferr != nil {
				return nil, ferr
			}
			continue
		}

		art.GeneratedAt = clock()
		if err := finalize(state, led, w, art, opts.OutDir); err != nil {
			return nil, err
		}
		artifacts[art.Name] = art
	}

	if err := writeRunOutputs(led, artifacts, opts.OutDir); err != nil {
		return nil, err
	}

	decision := gate.Decide(gate.CollectInputs(state))
	state.Freeze()

	runHash, err := runHash(opts.Period, led.Hashes())
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:     runID,
		State:     state,
		Ledger:    led,
		Artifacts: artifacts,
		Decision:  decision,
		RunHash:   runHash,
	}, nil
}

// runStage executes one engine, converting a panic into a
// ComputationError so an unexpected fault degrades that engine to a
// failure flag instead of crashing the run.
func runStage(ctx context.Context, stage engine.Engine, env *engine.Env) (art *engine.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			art = nil
			err = &engine.ComputationError{Engine: stage.Name(), Err: fmt.Errorf("%v", r)}
		}
	}()
	return stage.Run(ctx, env)
}

// finalize hashes the artifact, appends its provenance records, writes
// the JSON file, and records the artifact URI metric.
func finalize(state *runstate.State, led *ledger.Ledger, w *runstate.MetricWriter, art *engine.Artifact, outDir string) error {
	uri := art.Name + ".json"

	hash, err := canonical.ArtifactHash(art.CanonicalPayload())
	if err != nil {
		return fmt.Errorf("%s: %w", art.Name, err)
	}
	evidenceID, err := canonical.EvidenceHash(map[string]any{
		"uri":           uri,
		"input_row_ids": art.InputRowIDs,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", art.Name, err)
	}

	led.AppendEvidence(evidenceID, uri, art.InputRowIDs)
	led.AppendDeterministic(art.Name, map[string]string{
		"period":       state.Period.String(),
		"entity_scope": strings.Join(state.EntityScope, ","),
	}, hash, uri)

	if outDir != "" {
		data, err := canonical.Marshal(art.JSONPayload())
		if err != nil {
			return fmt.Errorf("%s: %w", art.Name, err)
		}
		if err := os.WriteFile(filepath.Join(outDir, uri), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", uri, err)
		}
	}

	if err := w.SetStr("artifact_uri", uri); err != nil {
		return err
	}
	return w.SetBool("failed", false)
}

// writeRunOutputs writes the audit log and the manifest. The manifest
// lifts the close reporter's summary fields to the top level:
// {generated_at, period, entity_scope, artifacts, summary, audit_log}.
func writeRunOutputs(led *ledger.Ledger, artifacts map[string]*engine.Artifact, outDir string) error {
	if outDir == "" {
		return nil
	}
	f, err := os.Create(filepath.Join(outDir, AuditLogName))
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	defer f.Close()
	if err := led.WriteJSONL(f); err != nil {
		return err
	}

	report, ok := artifacts[gate.NameReport]
	if !ok {
		return nil
	}
	data, err := canonical.Marshal(map[string]any{
		"generated_at": report.GeneratedAt.UTC().Format(time.RFC3339),
		"period":       report.Period,
		"entity_scope": report.EntityScope,
		"artifacts":    report.Summary["artifacts"],
		"summary":      report.Summary["summary"],
		"audit_log":    report.Summary["audit_log"],
	})
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// runHash computes the run-level content hash over every stage's output
// hash. Stable for identical datasets, materiality, and period.
func runHash(period domain.Period, hashes map[string]string) (string, error) {
	byFn := make(map[string]any, len(hashes))
	for fn, h := range hashes {
		byFn[fn] = h
	}
	b, err := canonical.Marshal(map[string]any{
		"period": period.String(),
		"stages": byFn,
	})
	if err != nil {
		return "", fmt.Errorf("run hash: %w", err)
	}
	return canonical.HashWithDomain(canonical.DomainRun, b), nil
}
