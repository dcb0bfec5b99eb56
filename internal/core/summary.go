package core

import "time"

// UsageSummary is the running aggregate over all persisted calculations.
// The zero value is the summary of an empty store.
type UsageSummary struct {
	TotalCalculations int64
	TotalEmissions    float64
	LastCalculationAt *time.Time
	LastTotal         *float64
}

// Apply records one more calculation with the given total.
func (s *UsageSummary) Apply(total float64, at time.Time) {
	s.TotalCalculations++
	s.TotalEmissions += total
	s.LastCalculationAt = &at
	s.LastTotal = &total
}

// ScopeAverages holds the mean of each scope subtotal across records.
type ScopeAverages struct {
	Scope1 float64 `json:"scope1"`
	Scope2 float64 `json:"scope2"`
	Scope3 float64 `json:"scope3"`
}

// UsageStats is the read model served by the stats endpoint.
type UsageStats struct {
	TotalCalculations int64         `json:"totalCalculations"`
	TotalEmissions    float64       `json:"totalEmissions"`
	AverageEmission   float64       `json:"averageEmission"`
	LastCalculationAt *time.Time    `json:"lastCalculationAt"`
	LastTotal         *float64      `json:"lastTotal"`
	ScopeAverages     ScopeAverages `json:"scopeAverages"`
}

// NewUsageStats derives the stats view. The average is computed from the
// already rounded total and rounded again; an empty summary yields zeros.
func NewUsageStats(s UsageSummary, avg ScopeAverages) UsageStats {
	total := Round(s.TotalEmissions)
	var mean float64
	if s.TotalCalculations > 0 {
		mean = Round(total / float64(s.TotalCalculations))
	}
	return UsageStats{
		TotalCalculations: s.TotalCalculations,
		TotalEmissions:    total,
		AverageEmission:   mean,
		LastCalculationAt: s.LastCalculationAt,
		LastTotal:         s.LastTotal,
		ScopeAverages: ScopeAverages{
			Scope1: Round(avg.Scope1),
			Scope2: Round(avg.Scope2),
			Scope3: Round(avg.Scope3),
		},
	}
}
