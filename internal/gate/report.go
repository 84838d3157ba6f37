package gate

import (
	"context"
	"strings"

	"github.com/rvanraamsdonk/closegate/internal/engine"
)

// CloseReporter assembles the terminal run manifest: every artifact URI
// recorded in Run State plus the headline status metrics. Purely
// additive, no computation.
type CloseReporter struct {
	// AuditLogURI points at the provenance log written for this run.
	AuditLogURI string
}

func (CloseReporter) Name() string      { return NameReport }
func (CloseReporter) Namespace() string { return "report" }

const artifactURISuffix = ".artifact_uri"

func (r CloseReporter) Run(ctx context.Context, env *engine.Env) (*engine.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := env.State

	artifacts := map[string]any{}
	for _, key := range s.Keys() {
		if !strings.HasSuffix(key, artifactURISuffix) {
			continue
		}
		name := strings.TrimSuffix(key, artifactURISuffix)
		artifacts[name+"_artifact"] = s.Str(key)
	}

	keyCounts := map[string]any{}
	for _, cm := range categoryMetrics {
		keyCounts[cm.name] = s.Int(cm.countKey)
	}

	blockClose, _ := s.Bool("gate.block_close")

	if err := env.Metrics.SetInt("artifact_count", int64(len(artifacts))); err != nil {
		return nil, err
	}

	return &engine.Artifact{
		Name:        r.Name(),
		Period:      s.Period.String(),
		EntityScope: s.EntityScope,
		Summary: map[string]any{
			"artifacts": artifacts,
			"summary": map[string]any{
				"risk_level":  s.Str("gate.risk_level"),
				"block_close": blockClose,
				"key_counts":  keyCounts,
			},
			"audit_log": r.AuditLogURI,
		},
	}, nil
}
