package payments

import "math"

// MinorUnits converts a two-decimal currency amount to minor units.
// Rounding keeps amounts with at most two decimal digits exact: 10.50
// becomes 1050 with no floating-point remainder.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
