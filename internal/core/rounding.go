// Package core provides the emissions domain: the factor table, the
// calculator and the usage aggregate.
//
// This file contains the single rounding rule used for every value the
// service returns or stores.
package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept on every output value.
const Precision = 2

// Round rounds v to two decimal places, half away from zero.
//
// The float is first converted to its shortest decimal representation, so
// values that print as a tie are treated as a tie:
//
//	Round(2.675)  -> 2.68
//	Round(-2.675) -> -2.68
//	Round(2.674)  -> 2.67
//
// NaN and infinities are returned unchanged.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(Precision).InexactFloat64()
}
