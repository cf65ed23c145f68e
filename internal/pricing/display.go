package pricing

import "github.com/shopspring/decimal"

// DisplayPlaces is the number of fractional digits shown to the cashier.
const DisplayPlaces = 2

// Display rounds half away from zero to DisplayPlaces and formats the amount.
func Display(d decimal.Decimal) string {
	return d.StringFixed(DisplayPlaces)
}

// Round is Display without formatting.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}
