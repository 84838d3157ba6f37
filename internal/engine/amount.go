package engine

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// round2 rounds to cents. Every derived monetary amount goes through
// this before it is compared, summed, or serialized.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// formatUSD renders an amount for narratives, e.g. "$12,345.67".
func formatUSD(d decimal.Decimal) string {
	cents := d.Round(2).Shift(2).IntPart()
	return money.New(cents, money.USD).Display()
}
