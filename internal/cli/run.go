package cli

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rvanraamsdonk/closegate/internal/config"
	"github.com/rvanraamsdonk/closegate/internal/dataset"
	"github.com/rvanraamsdonk/closegate/internal/ledger"
	"github.com/rvanraamsdonk/closegate/internal/pipeline"
)

// RunSummary is the run command's output payload.
type RunSummary struct {
	RunID             string           `json:"run_id"`
	Period            string           `json:"period"`
	RiskLevel         string           `json:"risk_level"`
	BlockClose        bool             `json:"block_close"`
	AutoCloseEligible bool             `json:"auto_close_eligible"`
	SourcesTriggered  int64            `json:"sources_triggered"`
	GrossExposure     string           `json:"gross_exposure"`
	NetExposure       string           `json:"net_exposure"`
	Exceptions        map[string]int64 `json:"exceptions"`
	RunHash           string           `json:"run_hash"`
	Reasons           []string         `json:"reasons,omitempty"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s period %s\n", s.RunID, s.Period)
	fmt.Fprintf(&b, "risk %s  block_close %v  auto_close_eligible %v\n",
		s.RiskLevel, s.BlockClose, s.AutoCloseEligible)
	fmt.Fprintf(&b, "exposure gross %s net %s across %d source(s)\n",
		s.GrossExposure, s.NetExposure, s.SourcesTriggered)
	for _, r := range s.Reasons {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	fmt.Fprintf(&b, "run hash %s", s.RunHash)
	return b.String()
}

func displayUSD(d decimal.Decimal) string {
	return money.New(d.Round(2).Shift(2).IntPart(), money.USD).Display()
}

// NewRunCommand creates the run command.
func NewRunCommand(root *RootOptions) *cobra.Command {
	var (
		configPath string
		dataDir    string
		outDir     string
		dbPath     string
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the close pipeline for a period",
		Long: "Executes every reconciliation engine, the gatekeeper, the controls\n" +
			"mapper, and the close reporter, then prints the close decision.\n" +
			"Exits 1 when the close is blocked.",
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
			if runID == "" {
				runID = uuid.NewString()
			}
			out.VerboseLog("run %s: period %s, %d entities", runID, cfg.Period, len(cfg.EntityScope))

			res, err := pipeline.Run(cmd.Context(), pipeline.Options{
				RunID:            runID,
				Period:           cfg.Period,
				PriorPeriod:      cfg.PriorPeriod,
				EntityScope:      cfg.EntityScope,
				Materiality:      cfg.Materiality,
				Datasets:         ds,
				OutDir:           outDir,
				TimingWindowDays: cfg.TimingWindowDays,
			})
			if err != nil {
				return reportExit(out, ErrCodeGeneric, WrapExitError(ExitCommandError, "pipeline failed", err))
			}

			if dbPath != "" {
				store, err := ledger.Open(dbPath)
				if err != nil {
					return reportExit(out, ErrCodeDatabase, WrapExitError(ExitCommandError, "open ledger db", err))
				}
				defer store.Close()
				if err := store.SaveRun(cmd.Context(), res.RunID, cfg.Period.String(), res.Ledger); err != nil {
					return reportExit(out, ErrCodeDatabase, WrapExitError(ExitCommandError, "persist run", err))
				}
				out.VerboseLog("ledger saved to %s", dbPath)
			}

			summary := RunSummary{
				RunID:             res.RunID,
				Period:            cfg.Period.String(),
				RiskLevel:         res.Decision.RiskLevel,
				BlockClose:        res.Decision.BlockClose,
				AutoCloseEligible: res.Decision.AutoCloseEligible,
				SourcesTriggered:  res.Decision.SourcesTriggered,
				GrossExposure:     displayUSD(res.Decision.Gross),
				NetExposure:       displayUSD(res.Decision.Net),
				Exceptions:        exceptionCounts(res),
				RunHash:           res.RunHash,
				Reasons:           res.Decision.Reasons,
			}
			if err := out.Success(summary); err != nil {
				return err
			}
			if res.Decision.BlockClose {
				return NewExitError(ExitFailure, "close blocked")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the close config (.cue)")
	cmd.Flags().StringVar(&dataDir, "data", "", "dataset directory (overrides config data_dir)")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for artifacts, audit log, and manifest")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite ledger database to persist the run")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: random UUID)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func exceptionCounts(res *pipeline.Result) map[string]int64 {
	out := map[string]int64{}
	for name, art := range res.Artifacts {
		out[name] = int64(len(art.Exceptions))
	}
	return out
}

// loadInputs loads the config and the datasets it points at.
func loadInputs(configPath, dataDir string) (*config.Config, *dataset.Set, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		return nil, nil, NewExitError(ExitCommandError, "no dataset directory: set close.data_dir or --data")
	}
	ds, err := dataset.Load(cfg.DataDir)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load datasets", err)
	}
	return cfg, ds, nil
}

// reportExit renders err through the formatter and returns it so the
// caller exits with the right code.
func reportExit(out *OutputFormatter, code string, err error) error {
	out.Error(code, err.Error(), nil)
	return err
}
