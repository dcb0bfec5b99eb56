package core

import (
	"time"

	"github.com/google/uuid"
)

// Emissions is the identifier-free outcome of a calculation.
type Emissions struct {
	Breakdown Breakdown
	Scope1    float64
	Scope2    float64
	Scope3    float64
	Total     float64
}

// ComputeEmissions multiplies every quantity by its factor and sums the
// contributions per scope. Subtotals and the grand total are built from
// full-precision values and rounded once at the end; breakdown entries are
// rounded independently.
//
// The input must already be validated (all quantities finite and >= 0).
func ComputeEmissions(in CalculationInput) Emissions {
	raw := make(map[Category]float64, len(emissionFactors))
	var subtotals [4]float64 // indexed by Scope

	for _, f := range emissionFactors {
		v := in.Quantity(f.Category) * f.Value
		raw[f.Category] = v
		subtotals[f.Scope] += v
	}

	breakdown := make(Breakdown, len(raw))
	for c, v := range raw {
		breakdown[c] = Round(v)
	}

	total := subtotals[Scope1] + subtotals[Scope2] + subtotals[Scope3]

	return Emissions{
		Breakdown: breakdown,
		Scope1:    Round(subtotals[Scope1]),
		Scope2:    Round(subtotals[Scope2]),
		Scope3:    Round(subtotals[Scope3]),
		Total:     Round(total),
	}
}

// Calculator stamps computed emissions with an identifier and a timestamp.
type Calculator struct {
	now   func() time.Time
	newID func() string
}

// NewCalculator returns a calculator using UUIDv4 identifiers and the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now, newID: uuid.NewString}
}

// NewCalculatorWith returns a calculator with custom clock and ID sources.
// Nil arguments fall back to the defaults.
func NewCalculatorWith(now func() time.Time, newID func() string) *Calculator {
	c := NewCalculator()
	if now != nil {
		c.now = now
	}
	if newID != nil {
		c.newID = newID
	}
	return c
}

// Calculate computes the result for a validated input.
func (c *Calculator) Calculate(in CalculationInput) CalculationResult {
	e := ComputeEmissions(in)
	return CalculationResult{
		ID:        c.newID(),
		Date:      c.now().UTC().Truncate(time.Microsecond),
		Scope1:    e.Scope1,
		Scope2:    e.Scope2,
		Scope3:    e.Scope3,
		Total:     e.Total,
		Breakdown: e.Breakdown,
	}
}
