// Package runstate holds the single-owner run context threaded through
// the close pipeline. The orchestrator owns the State; engines receive
// a MetricWriter scoped to their own namespace and may only append.
//
// Metrics are write-once: no engine overwrites another engine's keys,
// and no engine overwrites its own. Once the state is frozen (after the
// close reporter runs) all writes fail.
package runstate

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// DefaultMaterialityFloor applies when an entity has no configured
// materiality threshold.
var DefaultMaterialityFloor = decimal.NewFromInt(1000)

// Kind discriminates metric value types.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindString
	KindDecimal
)

// Value is a typed metric value. Exactly one field per Kind is set.
type Value struct {
	Kind    Kind
	Int     int64
	Bool    bool
	Str     string
	Decimal decimal.Decimal
}

// Any returns the value as a canonical-JSON-compatible Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindBool:
		return v.Bool
	case KindDecimal:
		return v.Decimal
	default:
		return v.Str
	}
}

// State is the mutable run context. Created at run start, mutated
// additively through the pipeline, frozen before the run manifest is
// final. Never shared across concurrent runs.
type State struct {
	RunID       string
	Period      domain.Period
	PriorPeriod domain.Period
	EntityScope []string
	Materiality map[string]decimal.Decimal
	Datasets    *dataset.Set

	metrics    map[string]Value
	namespaces map[string]bool
	frozen     bool
}

// New creates a State for one run. entityScope is copied.
func New(runID string, period, prior domain.Period, entityScope []string, materiality map[string]decimal.Decimal, ds *dataset.Set) *State {
	return &State{
		RunID:       runID,
		Period:      period,
		PriorPeriod: prior,
		EntityScope: slices.Clone(entityScope),
		Materiality: materiality,
		Datasets:    ds,
		metrics:     make(map[string]Value),
		namespaces:  make(map[string]bool),
	}
}

// Threshold returns the entity's materiality threshold, falling back to
// DefaultMaterialityFloor when none is configured.
func (s *State) Threshold(entity string) decimal.Decimal {
	if m, ok := s.Materiality[entity]; ok && m.IsPositive() {
		return m
	}
	return DefaultMaterialityFloor
}

// HasMateriality reports whether the entity has a configured threshold.
func (s *State) HasMateriality(entity string) bool {
	m, ok := s.Materiality[entity]
	return ok && m.IsPositive()
}

// Writer claims a metrics namespace for one engine. Each namespace can
// be claimed exactly once per run; this is what guarantees disjoint
// key ownership without locks.
func (s *State) Writer(namespace string) (*MetricWriter, error) {
	if namespace == "" {
		return nil, fmt.Errorf("runstate: empty namespace")
	}
	if s.namespaces[namespace] {
		return nil, fmt.Errorf("runstate: namespace %q already claimed", namespace)
	}
	s.namespaces[namespace] = true
	return &MetricWriter{state: s, namespace: namespace}, nil
}

// Freeze makes the state read-only. Idempotent.
func (s *State) Freeze() { s.frozen = true }

// Frozen reports whether the state has been frozen.
func (s *State) Frozen() bool { return s.frozen }

// Keys returns all metric keys in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.metrics))
	for k := range s.metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the raw metric value for a full key.
func (s *State) Get(key string) (Value, bool) {
	v, ok := s.metrics[key]
	return v, ok
}

// Int returns an int metric, or 0 when absent or of another kind.
func (s *State) Int(key string) int64 {
	if v, ok := s.metrics[key]; ok && v.Kind == KindInt {
		return v.Int
	}
	return 0
}

// Bool returns a bool metric. ok is false when absent or mistyped.
func (s *State) Bool(key string) (value, ok bool) {
	v, present := s.metrics[key]
	if !present || v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

// Str returns a string metric, or "" when absent or of another kind.
func (s *State) Str(key string) string {
	if v, ok := s.metrics[key]; ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// Dec returns a decimal metric, or zero when absent or of another kind.
func (s *State) Dec(key string) decimal.Decimal {
	if v, ok := s.metrics[key]; ok && v.Kind == KindDecimal {
		return v.Decimal
	}
	return decimal.Decimal{}
}

func (s *State) set(full string, v Value) error {
	if s.frozen {
		return fmt.Errorf("runstate: state is frozen, cannot write %q", full)
	}
	if _, exists := s.metrics[full]; exists {
		return fmt.Errorf("runstate: metric %q already written (write-once)", full)
	}
	s.metrics[full] = v
	return nil
}

// MetricWriter appends metrics under one engine's namespace.
type MetricWriter struct {
	state     *State
	namespace string
}

// Namespace returns the writer's claimed namespace.
func (w *MetricWriter) Namespace() string { return w.namespace }

func (w *MetricWriter) key(k string) string { return w.namespace + "." + k }

// SetInt writes an integer metric.
func (w *MetricWriter) SetInt(key string, v int64) error {
	return w.state.set(w.key(key), Value{Kind: KindInt, Int: v})
}

// SetBool writes a boolean metric.
func (w *MetricWriter) SetBool(key string, v bool) error {
	return w.state.set(w.key(key), Value{Kind: KindBool, Bool: v})
}

// SetStr writes a string metric.
func (w *MetricWriter) SetStr(key string, v string) error {
	return w.state.set(w.key(key), Value{Kind: KindString, Str: v})
}

// SetDec writes a decimal metric.
func (w *MetricWriter) SetDec(key string, v decimal.Decimal) error {
	return w.state.set(w.key(key), Value{Kind: KindDecimal, Decimal: v})
}
