package analytics

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rate returns numerator/denominator as a percentage rounded half away from
// zero to two decimals. A zero denominator yields exactly 0.
func Rate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return decimal.NewFromInt(numerator).
		Mul(hundred).
		DivRound(decimal.NewFromInt(denominator), 2).
		InexactFloat64()
}

// CTR is the click-through rate in percent.
func CTR(impressions, clicks int64) float64 {
	return Rate(clicks, impressions)
}

// ConversionRate is the share of clicks that converted, in percent.
func ConversionRate(clicks, conversions int64) float64 {
	return Rate(conversions, clicks)
}
