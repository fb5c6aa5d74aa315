package ledger

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ComputeMargin derives margin and margin percent from the VAT-exclusive
// turnover and cost of goods, rounded to 2 places. Zero turnover yields zeros.
func ComputeMargin(turnoverExclVAT, cogs decimal.Decimal) (margin, percent decimal.Decimal) {
	if turnoverExclVAT.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	m := turnoverExclVAT.Sub(cogs)
	return m.Round(2), m.Div(turnoverExclVAT).Mul(hundred).Round(2)
}
