package objects

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Numeric columns travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Decimal returns a valid NullDecimal holding v.
func Decimal(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}
