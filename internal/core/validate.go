package core

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that every quantity is finite and non-negative and that the
// resulting emissions stay within float64 range.
func (in CalculationInput) Validate() error {
	for _, f := range emissionFactors {
		if q := in.Quantity(f.Category); math.IsNaN(q) || math.IsInf(q, 0) {
			return NewValidationError("%s.%s must be a finite number", f.Scope, f.Category)
		}
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return NewValidationError("%s must be greater than or equal to 0", fieldPath(verrs[0]))
		}
		return NewValidationError("invalid input: %v", err)
	}

	return in.checkMagnitude()
}

// checkMagnitude rejects inputs whose contributions or sums overflow float64.
func (in CalculationInput) checkMagnitude() error {
	var subtotals [4]float64
	for _, f := range emissionFactors {
		v := in.Quantity(f.Category) * f.Value
		if math.IsInf(v, 0) {
			return NewValidationError("%s.%s is too large", f.Scope, f.Category)
		}
		subtotals[f.Scope] += v
	}
	for _, scope := range []Scope{Scope1, Scope2, Scope3} {
		if math.IsInf(subtotals[scope], 0) {
			return NewValidationError("%s total is too large", scope)
		}
	}
	if math.IsInf(subtotals[Scope1]+subtotals[Scope2]+subtotals[Scope3], 0) {
		return NewValidationError("total emissions are too large")
	}
	return nil
}

// fieldPath turns "CalculationInput.scope1.naturalGas" into "scope1.naturalGas".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
