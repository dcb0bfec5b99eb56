package core

import "fmt"

// Scope is a greenhouse-gas accounting scope.
type Scope int

const (
	Scope1 Scope = iota + 1 // direct emissions
	Scope2                  // purchased energy
	Scope3                  // other indirect emissions
)

func (s Scope) String() string {
	return fmt.Sprintf("scope%d", int(s))
}

// Category is a named sub-category inside a scope.
type Category string

const (
	NaturalGas      Category = "naturalGas"
	HeatingOil      Category = "heatingOil"
	Coal            Category = "coal"
	Diesel          Category = "diesel"
	Petrol          Category = "petrol"
	Refrigerants    Category = "refrigerants"
	Electricity     Category = "electricity"
	DistrictHeating Category = "districtHeating"
	Water           Category = "water"
	Waste           Category = "waste"
	AirTravelShort  Category = "airTravelShort"
	AirTravelLong   Category = "airTravelLong"
	RailTravel      Category = "railTravel"
)

// EmissionFactor converts one unit of activity into kg CO2e.
type EmissionFactor struct {
	Scope    Scope    `json:"scope"`
	Category Category `json:"category"`
	Value    float64  `json:"factor"`
}

// emissionFactors is ordered by scope, then by the order categories appear
// in CalculationInput.
var emissionFactors = [...]EmissionFactor{
	{Scope1, NaturalGas, 2.02},
	{Scope1, HeatingOil, 3.19},
	{Scope1, Coal, 2.42},
	{Scope1, Diesel, 2.68},
	{Scope1, Petrol, 2.31},
	{Scope1, Refrigerants, 1810.0},
	{Scope2, Electricity, 0.698},
	{Scope2, DistrictHeating, 95.05},
	{Scope3, Water, 0.344},
	{Scope3, Waste, 0.5},
	{Scope3, AirTravelShort, 0.255},
	{Scope3, AirTravelLong, 0.150},
	{Scope3, RailTravel, 0.041},
}

// Factors returns a copy of the emission factor table.
func Factors() []EmissionFactor {
	out := make([]EmissionFactor, len(emissionFactors))
	copy(out[:], emissionFactors[:])
	return out
}

// Factor looks up the factor for a scope and category. The table covers every
// field of CalculationInput; unknown pairs return 0.
func Factor(scope Scope, category Category) float64 {
	for _, f := range emissionFactors {
		if f.Scope == scope && f.Category == category {
			return f.Value
		}
	}
	return 0
}
