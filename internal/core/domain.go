package core

import (
	"errors"
	"fmt"
	"time"
)

type (
	// Scope1Inputs are quantities of fuels burned on-site.
	Scope1Inputs struct {
		NaturalGas   float64 `json:"naturalGas" validate:"gte=0"`   // m3
		HeatingOil   float64 `json:"heatingOil" validate:"gte=0"`   // liters
		Coal         float64 `json:"coal" validate:"gte=0"`         // kg
		Diesel       float64 `json:"diesel" validate:"gte=0"`       // liters
		Petrol       float64 `json:"petrol" validate:"gte=0"`       // liters
		Refrigerants float64 `json:"refrigerants" validate:"gte=0"` // kg
	}

	// Scope2Inputs are quantities of purchased energy.
	Scope2Inputs struct {
		Electricity     float64 `json:"electricity" validate:"gte=0"`     // kWh
		DistrictHeating float64 `json:"districtHeating" validate:"gte=0"` // GJ
	}

	// Scope3Inputs are quantities of other indirect activities.
	Scope3Inputs struct {
		Water          float64 `json:"water" validate:"gte=0"`          // m3
		Waste          float64 `json:"waste" validate:"gte=0"`          // kg
		AirTravelShort float64 `json:"airTravelShort" validate:"gte=0"` // km (< 500km)
		AirTravelLong  float64 `json:"airTravelLong" validate:"gte=0"`  // km (> 500km)
		RailTravel     float64 `json:"railTravel" validate:"gte=0"`     // km
	}

	// CalculationInput is the only externally supplied entity.
	CalculationInput struct {
		Scope1 Scope1Inputs `json:"scope1"`
		Scope2 Scope2Inputs `json:"scope2"`
		Scope3 Scope3Inputs `json:"scope3"`
	}

	// Breakdown maps each sub-category to its emission contribution in kg CO2e.
	Breakdown map[Category]float64

	// CalculationResult is what the calculator returns and what the API serves.
	CalculationResult struct {
		ID        string    `json:"id"`
		Date      time.Time `json:"date"`
		Scope1    float64   `json:"scope1"`
		Scope2    float64   `json:"scope2"`
		Scope3    float64   `json:"scope3"`
		Total     float64   `json:"total"`
		Breakdown Breakdown `json:"breakdown"`
	}

	// CalculationRecord is a persisted calculation. It keeps the original
	// payload next to the result for audit and replay.
	CalculationRecord struct {
		CalculationResult
		Payload CalculationInput `json:"-"`
	}
)

// ErrValidation marks client-caused errors. Match it with errors.Is.
var ErrValidation = errors.New("validation error")

// ValidationError carries a message that is safe to show to the caller.
type ValidationError struct {
	Msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Quantity returns the input quantity for a sub-category.
func (in CalculationInput) Quantity(c Category) float64 {
	if p := in.field(c); p != nil {
		return *p
	}
	return 0
}

// SetQuantity assigns the quantity of a sub-category. It reports false for
// categories outside the factor table.
func (in *CalculationInput) SetQuantity(c Category, v float64) bool {
	p := in.field(c)
	if p == nil {
		return false
	}
	*p = v
	return true
}

func (in *CalculationInput) field(c Category) *float64 {
	switch c {
	case NaturalGas:
		return &in.Scope1.NaturalGas
	case HeatingOil:
		return &in.Scope1.HeatingOil
	case Coal:
		return &in.Scope1.Coal
	case Diesel:
		return &in.Scope1.Diesel
	case Petrol:
		return &in.Scope1.Petrol
	case Refrigerants:
		return &in.Scope1.Refrigerants
	case Electricity:
		return &in.Scope2.Electricity
	case DistrictHeating:
		return &in.Scope2.DistrictHeating
	case Water:
		return &in.Scope3.Water
	case Waste:
		return &in.Scope3.Waste
	case AirTravelShort:
		return &in.Scope3.AirTravelShort
	case AirTravelLong:
		return &in.Scope3.AirTravelLong
	case RailTravel:
		return &in.Scope3.RailTravel
	}
	return nil
}

// NewRecord pairs a result with the input it was computed from.
func NewRecord(result CalculationResult, payload CalculationInput) CalculationRecord {
	return CalculationRecord{CalculationResult: result, Payload: payload}
}
