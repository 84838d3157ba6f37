// Package gate holds the terminal pipeline stages: the risk gatekeeper,
// the controls mapper, and the close reporter. The gatekeeper decision
// itself is a pure function of Run State metrics.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/engine"
	"github.com/rvanraamsdonk/closegate/internal/runstate"
)

// Stage names as recorded in DeterministicRun ledger entries.
const (
	NameGatekeeping = "gatekeeping"
	NameControls    = "controls_mapping"
	NameReport      = "close_report"
)

// Risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Fixed decision policy constants, in USD.
var (
	Materiality   = decimal.NewFromInt(50000)
	HighRiskLimit = decimal.NewFromInt(250000)
)

// Category is one exception source feeding the decision.
type Category struct {
	Name  string
	Count int64
	Total decimal.Decimal
}

// Inputs is everything the decision depends on. Auto-remediation is not
// a category; its total nets against gross exposure instead.
type Inputs struct {
	Categories       []Category
	FXCoverageOK     bool
	TBBalanced       bool
	RemediationTotal decimal.Decimal
	FailedEngines    []string
}

// Decision is the gatekeeper verdict.
type Decision struct {
	RiskLevel         string
	SourcesTriggered  int64
	Gross             decimal.Decimal
	Net               decimal.Decimal
	AutoCloseEligible bool
	BlockClose        bool
	Reasons           []string
}

// Decide maps aggregated exception signals to a go/no-go verdict. Pure:
// identical inputs always yield the identical decision.
func Decide(in Inputs) Decision {
	var (
		sources int64
		gross   = decimal.Zero
		reasons []string
	)
	for _, c := range in.Categories {
		if c.Count > 0 {
			sources++
			reasons = append(reasons, fmt.Sprintf("%s: %d exception(s) totaling %s", c.Name, c.Count, c.Total))
		}
		gross = gross.Add(c.Total)
	}
	net := gross.Sub(in.RemediationTotal)

	risk := RiskLow
	switch {
	case !in.FXCoverageOK:
		risk = RiskHigh
		reasons = append(reasons, "fx rate coverage gap")
	case !in.TBBalanced:
		risk = RiskHigh
		reasons = append(reasons, "trial balance out of balance")
	case len(in.FailedEngines) > 0:
		risk = RiskHigh
		reasons = append(reasons, fmt.Sprintf("engine failure: %v", in.FailedEngines))
	case net.GreaterThan(HighRiskLimit):
		risk = RiskHigh
		reasons = append(reasons, fmt.Sprintf("net exposure %s exceeds %s", net, HighRiskLimit))
	case sources >= 3:
		risk = RiskMedium
	case sources >= 2 && net.GreaterThan(Materiality):
		risk = RiskMedium
	}

	eligible := risk == RiskLow ||
		(risk == RiskMedium && net.LessThanOrEqual(Materiality))

	return Decision{
		RiskLevel:         risk,
		SourcesTriggered:  sources,
		Gross:             gross,
		Net:               net,
		AutoCloseEligible: eligible,
		BlockClose:        risk == RiskHigh || !eligible,
		Reasons:           reasons,
	}
}

// categoryMetrics maps each exception category to its count and total
// metric keys. Order is fixed; it drives artifact row order.
var categoryMetrics = []struct {
	name, countKey, totalKey string
}{
	{"fx", "fx.diff_count", "fx.total_abs_diff"},
	{"bank", "bank.exception_count", "bank.total_flagged_abs"},
	{"ap", "ap.exception_count", "ap.total_flagged_abs"},
	{"ar", "ar.exception_count", "ar.total_flagged_abs"},
	{"ic", "ic.exception_count", "ic.total_mismatch_abs"},
	{"accrual", "accrual.exception_count", "accrual.total_flagged_abs"},
	{"je", "je.exception_count", "je.total_flagged_abs"},
	{"flux", "flux.exception_count", "flux.total_flagged_abs"},
}

// CollectInputs reads the decision inputs out of Run State metrics.
// A missing control flag counts as a failure of that control.
func CollectInputs(s *runstate.State) Inputs {
	in := Inputs{RemediationTotal: s.Dec("remediation.auto_total")}
	for _, cm := range categoryMetrics {
		in.Categories = append(in.Categories, Category{
			Name:  cm.name,
			Count: s.Int(cm.countKey),
			Total: s.Dec(cm.totalKey),
		})
	}
	in.FXCoverageOK, _ = s.Bool("fx.coverage_ok")
	in.TBBalanced, _ = s.Bool("tb.balanced_by_entity")
	for _, key := range s.Keys() {
		if !strings.HasSuffix(key, ".failed") {
			continue
		}
		if failed, ok := s.Bool(key); ok && failed {
			in.FailedEngines = append(in.FailedEngines, strings.TrimSuffix(key, ".failed"))
		}
	}
	return in
}

// Gatekeeper aggregates every category's metrics into the close
// decision.
type Gatekeeper struct{}

func (Gatekeeper) Name() string      { return NameGatekeeping }
func (Gatekeeper) Namespace() string { return "gate" }

func (g Gatekeeper) Run(ctx context.Context, env *engine.Env) (*engine.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := CollectInputs(env.State)
	d := Decide(in)

	rows := make([]map[string]any, 0, len(in.Categories))
	for _, c := range in.Categories {
		rows = append(rows, map[string]any{
			"category": c.Name,
			"count":    c.Count,
			"total":    c.Total,
		})
	}

	w := env.Metrics
	if err := w.SetStr("risk_level", d.RiskLevel); err != nil {
		return nil, err
	}
	if err := w.SetBool("block_close", d.BlockClose); err != nil {
		return nil, err
	}
	if err := w.SetBool("auto_close_eligible", d.AutoCloseEligible); err != nil {
		return nil, err
	}
	if err := w.SetInt("sources_triggered", d.SourcesTriggered); err != nil {
		return nil, err
	}
	if err := w.SetDec("gross_exposure", d.Gross); err != nil {
		return nil, err
	}
	if err := w.SetDec("net_exposure", d.Net); err != nil {
		return nil, err
	}

	return &engine.Artifact{
		Name:        g.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Rows:        rows,
		Summary: map[string]any{
			"risk_level":          d.RiskLevel,
			"block_close":         d.BlockClose,
			"auto_close_eligible": d.AutoCloseEligible,
			"sources_triggered":   d.SourcesTriggered,
			"gross_exposure":      d.Gross,
			"net_exposure":        d.Net,
			"reasons":             d.Reasons,
			"failed_engines":      in.FailedEngines,
		},
	}, nil
}
