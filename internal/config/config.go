// Package config loads close-run configuration from CUE. Monetary
// thresholds are written as decimal strings; floats are rejected the
// same way they are everywhere else in this codebase.
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// Config is one run's close policy.
type Config struct {
	Period      domain.Period
	PriorPeriod domain.Period
	EntityScope []string
	Materiality map[string]decimal.Decimal

	// TimingWindowDays overrides the bank timing window when positive.
	TimingWindowDays int

	// DataDir points at the dataset directory. Relative paths resolve
	// against the process working directory.
	DataDir string
}

// Load reads and validates a CUE config file. The file carries a single
// top-level `close` struct.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse builds a Config from CUE source.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile config: %w", err)
	}

	root := value.LookupPath(cue.ParsePath("close"))
	if !root.Exists() {
		return nil, fmt.Errorf("%s: missing top-level close struct", filename)
	}

	cfg := &Config{Materiality: map[string]decimal.Decimal{}}

	periodStr, err := stringField(root, "period")
	if err != nil {
		return nil, err
	}
	cfg.Period, err = domain.ParsePeriod(periodStr)
	if err != nil {
		return nil, fmt.Errorf("close.period: %w", err)
	}

	if prior := root.LookupPath(cue.ParsePath("prior_period")); prior.Exists() {
		s, err := prior.String()
		if err != nil {
			return nil, fmt.Errorf("close.prior_period: %w", err)
		}
		cfg.PriorPeriod, err = domain.ParsePeriod(s)
		if err != nil {
			return nil, fmt.Errorf("close.prior_period: %w", err)
		}
	} else {
		cfg.PriorPeriod = cfg.Period.Prev()
	}

	scope := root.LookupPath(cue.ParsePath("entity_scope"))
	if !scope.Exists() {
		return nil, fmt.Errorf("%s: close.entity_scope is required", filename)
	}
	iter, err := scope.List()
	if err != nil {
		return nil, fmt.Errorf("close.entity_scope: %w", err)
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, fmt.Errorf("close.entity_scope: %w", err)
		}
		cfg.EntityScope = append(cfg.EntityScope, s)
	}
	if len(cfg.EntityScope) == 0 {
		return nil, fmt.Errorf("%s: close.entity_scope is empty", filename)
	}

	if mat := root.LookupPath(cue.ParsePath("materiality")); mat.Exists() {
		fields, err := mat.Fields()
		if err != nil {
			return nil, fmt.Errorf("close.materiality: %w", err)
		}
		for fields.Next() {
			s, err := fields.Value().String()
			if err != nil {
				return nil, fmt.Errorf("close.materiality.%s: decimal string required: %w", fields.Label(), err)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("close.materiality.%s: %w", fields.Label(), err)
			}
			if !d.IsPositive() {
				return nil, fmt.Errorf("close.materiality.%s: must be positive, got %s", fields.Label(), d)
			}
			cfg.Materiality[fields.Label()] = d
		}
	}

	if window := root.LookupPath(cue.ParsePath("timing_window_days")); window.Exists() {
		n, err := window.Int64()
		if err != nil {
			return nil, fmt.Errorf("close.timing_window_days: %w", err)
		}
		if n < 1 {
			return nil, fmt.Errorf("close.timing_window_days: must be at least 1, got %d", n)
		}
		cfg.TimingWindowDays = int(n)
	}

	if dir := root.LookupPath(cue.ParsePath("data_dir")); dir.Exists() {
		cfg.DataDir, err = dir.String()
		if err != nil {
			return nil, fmt.Errorf("close.data_dir: %w", err)
		}
	}

	return cfg, nil
}

func stringField(v cue.Value, name string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", fmt.Errorf("close.%s is required", name)
	}
	s, err := f.String()
	if err != nil {
		return "", fmt.Errorf("close.%s: %w", name, err)
	}
	return s, nil
}
