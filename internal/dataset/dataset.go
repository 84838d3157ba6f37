// Package dataset holds the typed record sets consumed by the close
// pipeline and the JSON loading contract of the data-access layer.
// Records are assumed schema-validated upstream; loading here only
// decodes shapes, it performs no inference or repair.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// Set is the complete collection of working datasets for one run.
type Set struct {
	TrialBalance []domain.TBLine
	Entities     []domain.EntityProfile
	Rates        []domain.FXRate
	Bank         []domain.BankTxn
	AP           []domain.APBill
	AR           []domain.ARInvoice
	Intercompany []domain.ICDoc
	Accruals     []domain.Accrual
	Journal      []domain.JournalEntry
	Flux         []domain.FluxRow
}

// File names under a dataset directory. A missing file yields an empty
// slice for that dataset, not an error; engines report schema gaps.
const (
	FileTrialBalance = "trial_balance.json"
	FileEntities     = "entities.json"
	FileRates        = "fx_rates.json"
	FileBank         = "bank_transactions.json"
	FileAP           = "ap_bills.json"
	FileAR           = "ar_invoices.json"
	FileIntercompany = "intercompany.json"
	FileAccruals     = "accruals.json"
	FileJournal      = "journal_entries.json"
	FileFlux         = "flux.json"
)

// Load reads every dataset file present under dir.
func Load(dir string) (*Set, error) {
	s := &Set{}
	loaders := []struct {
		file string
		dst  any
	}{
		{FileTrialBalance, &s.TrialBalance},
		{FileEntities, &s.Entities},
		{FileRates, &s.Rates},
		{FileBank, &s.Bank},
		{FileAP, &s.AP},
		{FileAR, &s.AR},
		{FileIntercompany, &s.Intercompany},
		{FileAccruals, &s.Accruals},
		{FileJournal, &s.Journal},
		{FileFlux, &s.Flux},
	}
	for _, l := range loaders {
		if err := loadJSON(filepath.Join(dir, l.file), l.dst); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// HomeCurrency returns the entity's home currency.
func (s *Set) HomeCurrency(entity string) (string, bool) {
	for _, e := range s.Entities {
		if e.Name == entity {
			return e.HomeCurrency, true
		}
	}
	return "", false
}

// Rate returns the period-end USD rate for a currency.
// USD always translates at 1.
func (s *Set) Rate(currency string) (decimal.Decimal, bool) {
	if currency == "USD" {
		return decimal.NewFromInt(1), true
	}
	for _, r := range s.Rates {
		if r.Currency == currency {
			return r.RateUSD, true
		}
	}
	return decimal.Decimal{}, false
}
