// Package domain defines the source record types the close pipeline
// reconciles. Records arrive schema-validated from the data-access
// layer; every record carries a stable natural identifier used for
// tie-breaking and provenance linkage. Records are never mutated.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TBLine is one trial-balance line for an entity/account.
type TBLine struct {
	Entity       string          `json:"entity"`
	Account      string          `json:"account"`
	AccountName  string          `json:"account_name,omitempty"`
	Currency     string          `json:"currency"`
	BalanceLocal decimal.Decimal `json:"balance_local"`
	ReportedUSD  decimal.Decimal `json:"reported_usd"`
}

// RowID returns the line's natural identifier.
func (l TBLine) RowID() string { return l.Entity + "|" + l.Account }

// EntityProfile maps an entity to its home currency.
type EntityProfile struct {
	Name         string `json:"name"`
	HomeCurrency string `json:"home_currency"`
}

// FXRate is the period-end rate from one currency into USD.
type FXRate struct {
	Currency string          `json:"currency"`
	RateUSD  decimal.Decimal `json:"rate_usd"`
}

// BankTxn is one bank-statement transaction.
type BankTxn struct {
	ID           string          `json:"bank_txn_id"`
	Entity       string          `json:"entity"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Counterparty string          `json:"counterparty"`
	Type         string          `json:"type"`
	Description  string          `json:"description,omitempty"`
}

// APBill is one accounts-payable bill.
type APBill struct {
	ID       string          `json:"bill_id"`
	Entity   string          `json:"entity"`
	Vendor   string          `json:"vendor"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	AgeDays  int             `json:"age_days"`
	Notes    string          `json:"notes,omitempty"`
}

// ARInvoice is one accounts-receivable invoice.
type ARInvoice struct {
	ID       string          `json:"invoice_id"`
	Entity   string          `json:"entity"`
	Customer string          `json:"customer"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	AgeDays  int             `json:"age_days"`
	Notes    string          `json:"notes,omitempty"`
}

// ICDoc is one intercompany document, carrying both legs.
type ICDoc struct {
	ID        string          `json:"doc_id"`
	SrcEntity string          `json:"entity_src"`
	DstEntity string          `json:"entity_dst"`
	AmountSrc decimal.Decimal `json:"amount_src"`
	AmountDst decimal.Decimal `json:"amount_dst"`
	Currency  string          `json:"currency"`
	TxnType   string          `json:"transaction_type"`
	Date      time.Time       `json:"date"`
}

// Accrual statuses recognized by the accrual check.
const (
	AccrualActive        = "Active"
	AccrualShouldReverse = "Should Reverse"
	AccrualReversed      = "Reversed"
)

// Accrual is one accrual record with its expected reversal.
type Accrual struct {
	ID           string          `json:"accrual_id"`
	Entity       string          `json:"entity"`
	Description  string          `json:"description,omitempty"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	Status       string          `json:"status"`
	AccrualDate  time.Time       `json:"accrual_date"`
	ReversalDate time.Time       `json:"reversal_date,omitzero"`
}

// JournalEntry is one journal entry subject to governance checks.
type JournalEntry struct {
	ID             string          `json:"je_id"`
	Entity         string          `json:"entity"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	Source         string          `json:"source"`
	ApprovalStatus string          `json:"approval_status"`
	Approver       string          `json:"approver,omitempty"`
	SupportingDoc  string          `json:"supporting_doc,omitempty"`
	Reversal       bool            `json:"reversal_flag"`
}

// FluxRow is one (entity, account) actual/budget/prior observation.
type FluxRow struct {
	Entity    string          `json:"entity"`
	Account   string          `json:"account"`
	ActualUSD decimal.Decimal `json:"actual_usd"`
	BudgetUSD decimal.Decimal `json:"budget_usd"`
	PriorUSD  decimal.Decimal `json:"prior_usd"`
}

// RowID returns the row's natural identifier.
func (r FluxRow) RowID() string { return r.Entity + "|" + r.Account }
