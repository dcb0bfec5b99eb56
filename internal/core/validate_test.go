package core

import (
	"errors"
	"math"
	"testing"
)

func TestCalculationInputValidate(t *testing.T) {
	cases := []struct {
		name string
		in   CalculationInput
		ok   bool
		msg  string
	}{
		{"zero", CalculationInput{}, true, ""},
		{"positive", CalculationInput{Scope1: Scope1Inputs{NaturalGas: 100}}, true, ""},
		{"negative", CalculationInput{Scope2: Scope2Inputs{Electricity: -1}}, false, "scope2.electricity must be greater than or equal to 0"},
		{"nan", CalculationInput{Scope3: Scope3Inputs{Water: math.NaN()}}, false, "scope3.water must be a finite number"},
		{"inf", CalculationInput{Scope1: Scope1Inputs{Coal: math.Inf(1)}}, false, "scope1.coal must be a finite number"},
	}
	for _, tc := range cases {
		err := tc.in.Validate()
		if tc.ok {
			if err != nil {
				t.Fatalf("%s: expected ok, got %v", tc.name, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
		if err.Error() != tc.msg {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.msg, err.Error())
		}
	}
}

func TestSetQuantity(t *testing.T) {
	var in CalculationInput
	for i, f := range Factors() {
		if !in.SetQuantity(f.Category, float64(i+1)) {
			t.Fatalf("SetQuantity(%s) reported unknown category", f.Category)
		}
	}
	for i, f := range Factors() {
		if got := in.Quantity(f.Category); got != float64(i+1) {
			t.Fatalf("Quantity(%s) = %v, want %v", f.Category, got, i+1)
		}
	}
	if in.SetQuantity(Category("bicycle"), 1) {
		t.Fatal("unknown category should be rejected")
	}
	if in.Quantity(Category("bicycle")) != 0 {
		t.Fatal("unknown category reads as 0")
	}
}
