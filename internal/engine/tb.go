package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ReasonTBImbalance flags an entity whose reported USD lines do not
// net to zero.
const ReasonTBImbalance = "tb_entity_imbalance"

// TBDiagnostics checks that each entity's trial balance nets to zero in
// reported USD. The resulting tb.balanced_by_entity flag is one of the
// gatekeeper's two hard control gates.
type TBDiagnostics struct{}

func (TBDiagnostics) Name() string      { return NameTB }
func (TBDiagnostics) Namespace() string { return "tb" }

func (e TBDiagnostics) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.TrialBalance) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "trial_balance"}
	}

	sums := map[string]decimal.Decimal{}
	rowsByEntity := map[string][]string{}
	var inputIDs []string
	for _, l := range ds.TrialBalance {
		inputIDs = append(inputIDs, l.RowID())
		sums[l.Entity] = sums[l.Entity].Add(l.ReportedUSD)
		rowsByEntity[l.Entity] = append(rowsByEntity[l.Entity], l.RowID())
	}

	entities := make([]string, 0, len(sums))
	for entity := range sums {
		entities = append(entities, entity)
	}
	slices.Sort(entities)

	var (
		rows       []map[string]any
		exceptions []Exception
		balanced   = true
	)
	for _, entity := range entities {
		net := round2(sums[entity])
		ok := net.IsZero()
		rows = append(rows, map[string]any{
			"entity":   entity,
			"net_usd":  net,
			"balanced": ok,
		})
		if ok {
			continue
		}
		balanced = false
		ids := slices.Clone(rowsByEntity[entity])
		slices.Sort(ids)
		exceptions = append(exceptions, Exception{
			Entity:      entity,
			Identifiers: ids,
			Amount:      net,
			Currency:    "USD",
			Reason:      ReasonTBImbalance,
			Rationale:   fmt.Sprintf("trial balance nets to %s, expected 0.00", net),
		})
	}

	w := env.Metrics
	if err := w.SetBool("balanced_by_entity", balanced); err != nil {
		return nil, err
	}
	if err := w.SetInt("imbalance_count", int64(len(exceptions))); err != nil {
		return nil, err
	}

	return &Artifact{
		Name:        e.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Rows:        rows,
		Exceptions:  exceptions,
		Summary: map[string]any{
			"balanced_by_entity": balanced,
			"imbalance_count":    int64(len(exceptions)),
		},
		InputRowIDs: inputIDs,
	}, nil
}
