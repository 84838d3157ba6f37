package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rvanraamsdonk/closegate/internal/ledger"
	"github.com/rvanraamsdonk/closegate/internal/pipeline"
)

// HashMismatch is one stage whose recomputed hash differs from the
// stored ledger.
type HashMismatch struct {
	Fn         string `json:"fn"`
	Stored     string `json:"stored"`
	Recomputed string `json:"recomputed"`
}

// VerifySummary is the verify command's output payload.
type VerifySummary struct {
	RunID      string         `json:"run_id"`
	Stages     int            `json:"stages"`
	Match      bool           `json:"match"`
	Mismatches []HashMismatch `json:"mismatches,omitempty"`
}

func (s VerifySummary) String() string {
	var b strings.Builder
	if s.Match {
		fmt.Fprintf(&b, "run %s verified: %d stage hash(es) match", s.RunID, s.Stages)
		return b.String()
	}
	fmt.Fprintf(&b, "run %s FAILED verification: %d mismatch(es)\n", s.RunID, len(s.Mismatches))
	for _, m := range s.Mismatches {
		fmt.Fprintf(&b, "  %s\n    stored     %s\n    recomputed %s\n", m.Fn, m.Stored, m.Recomputed)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewVerifyCommand creates the verify command: re-derive a stored run
// from its inputs and compare every stage's output hash against the
// ledger.
func NewVerifyCommand(root *RootOptions) *cobra.Command {
	var (
		configPath string
		dataDir    string
		dbPath     string
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-run a stored close and check hash-exact reproducibility",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{
				Format:    root.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   root.Verbose,
			}

			cfg, ds, err := loadInputs(configPath, dataDir)
			if err != nil {
				return reportExit(out, ErrCodeConfig, err)
			}

			store, err := ledger.Open(dbPath)
			if err != nil {
				return reportExit(out, ErrCodeDatabase, WrapExitError(ExitCommandError, "open ledger db", err))
			}
			defer store.Close()

			stored, err := store.RunHashes(cmd.Context(), runID)
			if err != nil {
				return reportExit(out, ErrCodeDatabase, WrapExitError(ExitCommandError, "read stored run", err))
			}
			if len(stored) == 0 {
				return reportExit(out, ErrCodeNotFound,
					NewExitError(ExitCommandError, fmt.Sprintf("run %s not found in %s", runID, dbPath)))
			}

			res, err := pipeline.Run(cmd.Context(), pipeline.Options{
				RunID:            runID,
				Period:           cfg.Period,
				PriorPeriod:      cfg.PriorPeriod,
				EntityScope:      cfg.EntityScope,
				Materiality:      cfg.Materiality,
				Datasets:         ds,
				TimingWindowDays: cfg.TimingWindowDays,
			})
			if err != nil {
				return reportExit(out, ErrCodeGeneric, WrapExitError(ExitCommandError, "replay failed", err))
			}

			summary := compareHashes(runID, stored, res.Ledger.Hashes())
			if err := out.Success(summary); err != nil {
				return err
			}
			if !summary.Match {
				return NewExitError(ExitFailure, "hash mismatch")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the close config (.cue)")
	cmd.Flags().StringVar(&dataDir, "data", "", "dataset directory (overrides config data_dir)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite ledger database holding the run")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier to verify")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("db")
	cmd.MarkFlagRequired("run-id")

	return cmd
}

func compareHashes(runID string, stored, recomputed map[string]string) VerifySummary {
	fns := make([]string, 0, len(stored))
	for fn := range stored {
		fns = append(fns, fn)
	}
	for fn := range recomputed {
		if _, ok := stored[fn]; !ok {
			fns = append(fns, fn)
		}
	}
	sort.Strings(fns)

	summary := VerifySummary{RunID: runID, Stages: len(fns), Match: true}
	for _, fn := range fns {
		if stored[fn] == recomputed[fn] {
			continue
		}
		summary.Match = false
		summary.Mismatches = append(summary.Mismatches, HashMismatch{
			Fn: fn, Stored: stored[fn], Recomputed: recomputed[fn],
		})
	}
	return summary
}
