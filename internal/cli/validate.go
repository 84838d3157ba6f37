package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidateSummary is the validate command's output payload.
type ValidateSummary struct {
	Period          string            `json:"period"`
	PriorPeriod     string            `json:"prior_period"`
	EntityScope     []string          `json:"entity_scope"`
	Datasets        map[string]int    `json:"datasets"`
	Empty           []string          `json:"empty_datasets,omitempty"`
	OffHomeCurrency []string          `json:"off_home_currency,omitempty"`
	Materiality     map[string]string `json:"materiality"`
}

func (s ValidateSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "config ok: period %s (prior %s), %d entities\n", s.Period, s.PriorPeriod, len(s.EntityScope))
	fmt.Fprintf(&b, "datasets:")
	for _, name := range datasetOrder {
		fmt.Fprintf(&b, " %s=%d", name, s.Datasets[name])
	}
	if len(s.Empty) > 0 {
		fmt.Fprintf(&b, "\nempty datasets (engines will report schema gaps): %s", strings.Join(s.Empty, ", "))
	}
	if len(s.OffHomeCurrency) > 0 {
		fmt.Fprintf(&b, "\ntb lines off home currency: %s", strings.Join(s.OffHomeCurrency, ", "))
	}
	return b.String()
}

var datasetOrder = []string{
	"trial_balance", "entities", "fx_rates", "bank", "ap", "ar",
	"intercompany", "accruals", "journal_entries", "flux",
}

// NewValidateCommand creates the validate command: load the config and
// datasets and report what a run would see, without running anything.
func NewValidateCommand(root *RootOptions) *cobra.Command {
	var (
		configPath string
		dataDir    string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the close config and datasets without running",
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

			counts := map[string]int{
				"trial_balance":   len(ds.TrialBalance),
				"entities":        len(ds.Entities),
				"fx_rates":        len(ds.Rates),
				"bank":            len(ds.Bank),
				"ap":              len(ds.AP),
				"ar":              len(ds.AR),
				"intercompany":    len(ds.Intercompany),
				"accruals":        len(ds.Accruals),
				"journal_entries": len(ds.Journal),
				"flux":            len(ds.Flux),
			}
			var empty []string
			for _, name := range datasetOrder {
				if counts[name] == 0 {
					empty = append(empty, name)
				}
			}

			// Trial-balance lines usually carry the entity's home
			// currency; a deviation is worth a look before running.
			var offHome []string
			for _, l := range ds.TrialBalance {
				home, ok := ds.HomeCurrency(l.Entity)
				if ok && l.Currency != home {
					offHome = append(offHome, fmt.Sprintf("%s (%s, home %s)", l.RowID(), l.Currency, home))
				}
			}

			materiality := map[string]string{}
			for entity, d := range cfg.Materiality {
				materiality[entity] = d.String()
			}

			return out.Success(ValidateSummary{
				Period:          cfg.Period.String(),
				PriorPeriod:     cfg.PriorPeriod.String(),
				EntityScope:     cfg.EntityScope,
				Datasets:        counts,
				Empty:           empty,
				OffHomeCurrency: offHome,
				Materiality:     materiality,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the close config (.cue)")
	cmd.Flags().StringVar(&dataDir, "data", "", "dataset directory (overrides config data_dir)")
	cmd.MarkFlagRequired("config")

	return cmd
}
