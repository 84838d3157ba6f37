package gate

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rvanraamsdonk/closegate/internal/engine"
)

//go:embed controls.yaml
var controlsYAML []byte

// Control is one entry of the static control catalogue.
type Control struct {
	MetricKey   string `yaml:"metric_key"`
	ControlID   string `yaml:"control_id"`
	Description string `yaml:"description"`
}

type controlCatalogue struct {
	Controls []Control `yaml:"controls"`
}

// Catalogue returns the embedded control catalogue in file order.
func Catalogue() ([]Control, error) {
	var c controlCatalogue
	if err := yaml.Unmarshal(controlsYAML, &c); err != nil {
		return nil, fmt.Errorf("controls catalogue: %w", err)
	}
	return c.Controls, nil
}

// ControlsMapper projects Run State metrics onto the control catalogue,
// emitting one mapping row per catalogued key present in the state.
type ControlsMapper struct{}

func (ControlsMapper) Name() string      { return NameControls }
func (ControlsMapper) Namespace() string { return "controls" }

func (m ControlsMapper) Run(ctx context.Context, env *engine.Env) (*engine.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	catalogue, err := Catalogue()
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, c := range catalogue {
		v, ok := env.State.Get(c.MetricKey)
		if !ok {
			continue
		}
		rows = append(rows, map[string]any{
			"metric_key":  c.MetricKey,
			"control_id":  c.ControlID,
			"description": c.Description,
			"value":       v.Any(),
		})
	}

	if err := env.Metrics.SetInt("mapped_count", int64(len(rows))); err != nil {
		return nil, err
	}

	return &engine.Artifact{
		Name:        m.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Rows:        rows,
		Summary: map[string]any{
			"mapped_count":   int64(len(rows)),
			"catalogue_size": int64(len(catalogue)),
		},
	}, nil
}
