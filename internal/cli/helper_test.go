package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeCleanFixture lays out a config file and a dataset directory that
// close cleanly (no exceptions, low risk). Returns the config path.
func writeCleanFixture(t *testing.T, dir string) string {
	t.Helper()

	dataDir := filepath.Join(dir, "period")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	files := map[string]string{
		"trial_balance.json": `[
			{"entity":"ENT_A","account":"1000","currency":"EUR","balance_local":"1000","reported_usd":"1100.00"},
			{"entity":"ENT_A","account":"3000","currency":"EUR","balance_local":"-1000","reported_usd":"-1100.00"},
			{"entity":"ENT_B","account":"1000","currency":"USD","balance_local":"500","reported_usd":"500.00"},
			{"entity":"ENT_B","account":"3000","currency":"USD","balance_local":"-500","reported_usd":"-500.00"}
		]`,
		"entities.json": `[
			{"name":"ENT_A","home_currency":"EUR"},
			{"name":"ENT_B","home_currency":"USD"}
		]`,
		"fx_rates.json": `[{"currency":"EUR","rate_usd":"1.10"}]`,
		"bank_transactions.json": `[
			{"bank_txn_id":"TXN_001","entity":"ENT_A","date":"2025-08-05T00:00:00Z","amount":"1200.00","currency":"USD","counterparty":"Acme","type":"payment"}
		]`,
		"ap_bills.json": `[
			{"bill_id":"BILL_001","entity":"ENT_A","vendor":"Acme","amount":"900","currency":"USD","status":"Paid","age_days":12}
		]`,
		"ar_invoices.json": `[
			{"invoice_id":"INV_001","entity":"ENT_B","customer":"Hooli","amount":"1500","currency":"USD","status":"Open","age_days":20}
		]`,
		"intercompany.json": `[
			{"doc_id":"IC_001","entity_src":"ENT_A","entity_dst":"ENT_B","amount_src":"500.50","amount_dst":"500.50","currency":"USD","transaction_type":"service fee","date":"2025-08-10T00:00:00Z"}
		]`,
		"accruals.json": `[
			{"accrual_id":"ACC_001","entity":"ENT_A","amount_usd":"750","status":"Active","accrual_date":"2025-08-03T00:00:00Z","reversal_date":"2025-09-15T00:00:00Z"}
		]`,
		"journal_entries.json": `[
			{"je_id":"JE_001","entity":"ENT_A","amount_usd":"400","source":"System","approval_status":"Approved","approver":"controller"}
		]`,
		"flux.json": `[
			{"entity":"ENT_A","account":"6000","actual_usd":"10000","budget_usd":"10000","prior_usd":"10100"}
		]`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644))
	}

	configPath := filepath.Join(dir, "close.cue")
	configSrc := `
close: {
	period:       "2025-08"
	entity_scope: ["ENT_A", "ENT_B"]
	materiality: {
		ENT_A: "50000"
		ENT_B: "50000"
	}
	data_dir: "` + dataDir + `"
}
`
	require.NoError(t, os.WriteFile(configPath, []byte(configSrc), 0o644))
	return configPath
}
