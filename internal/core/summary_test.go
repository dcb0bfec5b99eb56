package core

import (
	"testing"
	"time"
)

func TestUsageSummaryApply(t *testing.T) {
	var s UsageSummary
	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	s.Apply(10.0, t1)
	s.Apply(20.5, t2)

	if s.TotalCalculations != 2 {
		t.Fatalf("expected 2 calculations, got %d", s.TotalCalculations)
	}
	if s.TotalEmissions != 30.5 {
		t.Fatalf("expected 30.5, got %v", s.TotalEmissions)
	}
	if s.LastCalculationAt == nil || !s.LastCalculationAt.Equal(t2) {
		t.Fatalf("expected last calculation at %v, got %v", t2, s.LastCalculationAt)
	}
	if s.LastTotal == nil || *s.LastTotal != 20.5 {
		t.Fatalf("expected last total 20.5, got %v", s.LastTotal)
	}
}

func TestNewUsageStatsEmpty(t *testing.T) {
	st := NewUsageStats(UsageSummary{}, ScopeAverages{})
	if st.TotalCalculations != 0 || st.TotalEmissions != 0 || st.AverageEmission != 0 {
		t.Fatalf("expected zero stats, got %+v", st)
	}
	if st.LastCalculationAt != nil || st.LastTotal != nil {
		t.Fatalf("expected nil last values, got %+v", st)
	}
	if st.ScopeAverages != (ScopeAverages{}) {
		t.Fatalf("expected zero scope averages, got %+v", st.ScopeAverages)
	}
}

func TestNewUsageStatsRounding(t *testing.T) {
	cases := []struct {
		name      string
		count     int64
		total     float64
		wantTotal float64
		wantAvg   float64
	}{
		{"two records", 2, 30.5, 30.5, 15.25},
		{"average rounds", 3, 10, 10, 3.33},
		{"total rounded first", 2, 0.0149999, 0.01, 0.01}, // 0.01/2 = 0.005
	}
	for _, tc := range cases {
		st := NewUsageStats(UsageSummary{TotalCalculations: tc.count, TotalEmissions: tc.total}, ScopeAverages{Scope1: 1.2345})
		if st.TotalEmissions != tc.wantTotal || st.AverageEmission != tc.wantAvg {
			t.Fatalf("%s: expected total=%v avg=%v, got total=%v avg=%v",
				tc.name, tc.wantTotal, tc.wantAvg, st.TotalEmissions, st.AverageEmission)
		}
		if st.ScopeAverages.Scope1 != 1.23 {
			t.Fatalf("%s: expected scope1 average 1.23, got %v", tc.name, st.ScopeAverages.Scope1)
		}
	}
}
