package calculator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/schemas"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/units"
	"github.com/shopspring/decimal"
)

// AppliedFactor is the coefficient an activity is computed with, either a catalog factor
// or a value entered by the user.
type AppliedFactor struct {
	Value float64
	Unit  string
	Ref   *types.FactorRef
}

// FromCatalog wraps a catalog factor.
func FromCatalog(f types.EmissionsFactor) *AppliedFactor {
	ref := f.Ref()
	return &AppliedFactor{Value: f.Value, Unit: f.Unit, Ref: &ref}
}

// FromUser wraps a user-supplied factor.
func FromUser(u types.UserFactor) *AppliedFactor {
	return &AppliedFactor{Value: u.Value, Unit: u.Unit}
}

// formulaInput is the typed input of one methodology. apply returns kilograms of gas.
type formulaInput interface {
	apply(factor *AppliedFactor) (float64, []string, error)
}

type formula struct {
	required    []string
	needsFactor bool
	decode      func(types.InputPayload) formulaInput
}

var formulas = map[types.Methodology]formula{
	types.MethodologyDirectMeasurement: {
		required: []string{"emissions"},
		decode: func(p types.InputPayload) formulaInput {
			return directMeasurementInput{Emissions: p["emissions"]}
		},
	},
	types.MethodologyFuelCombustion: {
		required:    []string{"fuel_amount"},
		needsFactor: true,
		decode: func(p types.InputPayload) formulaInput {
			return fuelCombustionInput{FuelAmount: p["fuel_amount"]}
		},
	},
	types.MethodologyEnergyConsumption: {
		required:    []string{"energy"},
		needsFactor: true,
		decode: func(p types.InputPayload) formulaInput {
			return energyConsumptionInput{Energy: p["energy"]}
		},
	},
	types.MethodologyScaledByPopulation: {
		required:    []string{"population"},
		needsFactor: true,
		decode: func(p types.InputPayload) formulaInput {
			in := scaledByPopulationInput{Population: p["population"]}
			if share, ok := p["scaling_share"]; ok {
				in.ScalingShare = &share
			}
			return in
		},
	},
}

type directMeasurementInput struct {
	Emissions types.Measure
}

func (in directMeasurementInput) apply(_ *AppliedFactor) (float64, []string, error) {
	unit := in.Emissions.Unit
	var conversions []string
	if strings.TrimSpace(unit) == "" {
		unit = "kg"
		conversions = append(conversions, "assumed unit kg")
	}
	kg, err := units.Convert(in.Emissions.Value, unit, "kg")
	if err != nil {
		return 0, nil, err
	}
	if u, _ := units.Lookup(unit); u.Symbol != "kg" {
		conversions = append(conversions, fmt.Sprintf("%g %s -> %g kg", in.Emissions.Value, unit, kg))
	}
	return kg, conversions, nil
}

type fuelCombustionInput struct {
	FuelAmount types.Measure
}

func (in fuelCombustionInput) apply(factor *AppliedFactor) (float64, []string, error) {
	return applyRate(in.FuelAmount, factor, units.Volume, units.Mass, units.Energy)
}

type energyConsumptionInput struct {
	Energy types.Measure
}

func (in energyConsumptionInput) apply(factor *AppliedFactor) (float64, []string, error) {
	return applyRate(in.Energy, factor, units.Energy)
}

type scaledByPopulationInput struct {
	Population   types.Measure
	ScalingShare *types.Measure
}

func (in scaledByPopulationInput) apply(factor *AppliedFactor) (float64, []string, error) {
	kg, conversions, err := applyRate(in.Population, factor, units.Count)
	if err != nil {
		return 0, nil, err
	}
	if in.ScalingShare == nil {
		return kg, conversions, nil
	}
	share, err := units.Convert(in.ScalingShare.Value, in.ScalingShare.Unit, "")
	if err != nil {
		return 0, nil, err
	}
	conversions = append(conversions, fmt.Sprintf("scaled by share %g", share))
	return mul(kg, share), conversions, nil
}

// mul multiplies in decimal so that e.g. 100 l x 2.3 kg/l is exactly 230 kg.
func mul(values ...float64) float64 {
	product := decimal.NewFromInt(1)
	for _, v := range values {
		product = product.Mul(decimal.NewFromFloat(v))
	}
	f, _ := product.Float64()
	return f
}

// applyRate multiplies q by a <mass>/<unit> factor after converting q into the factor's
// denominator unit. A unit-less quantity is taken to be in the denominator unit.
func applyRate(q types.Measure, factor *AppliedFactor, accept ...units.Dimension) (float64, []string, error) {
	rate, err := units.ParseRate(factor.Unit)
	if err != nil {
		return 0, nil, err
	}

	var conversions []string
	unit := q.Unit
	if strings.TrimSpace(unit) == "" {
		unit = rate.Denominator.Symbol
		conversions = append(conversions, fmt.Sprintf("assumed unit %s", rate.Denominator.Symbol))
	}

	dim, ok := units.DimensionOf(unit)
	if !ok {
		return 0, nil, &units.ConversionError{From: unit, To: rate.Denominator.Symbol, Reason: fmt.Sprintf("unknown unit %q", unit)}
	}
	if !containsDimension(accept, dim) {
		return 0, nil, &units.ConversionError{
			From:   unit,
			To:     rate.Denominator.Symbol,
			Reason: fmt.Sprintf("%s input is not accepted by this methodology", dim),
		}
	}

	amount, err := units.Convert(q.Value, unit, rate.Denominator.Symbol)
	if err != nil {
		return 0, nil, err
	}
	if u, _ := units.Lookup(unit); u.Symbol != rate.Denominator.Symbol {
		conversions = append(conversions, fmt.Sprintf("%g %s -> %g %s", q.Value, unit, amount, rate.Denominator.Symbol))
	}

	kg := mul(amount, factor.Value, rate.Numerator.ToBase)
	if rate.Numerator.Symbol != "kg" {
		conversions = append(conversions, fmt.Sprintf("factor %s -> kg", rate.Numerator.Symbol))
	}
	return kg, conversions, nil
}

func containsDimension(dims []units.Dimension, d units.Dimension) bool {
	for _, x := range dims {
		if x == d {
			return true
		}
	}
	return false
}

// unitFields maps the dimension of a unit-named payload key, such as {"liters": 100}, to
// the formula field that consumes it.
var unitFields = map[units.Dimension]string{
	units.Volume: "fuel_amount",
	units.Mass:   "fuel_amount",
	units.Energy: "energy",
	units.Count:  "population",
}

// normalizePayload returns a copy of p with unit-named keys moved to their formula field.
func normalizePayload(p types.InputPayload) types.InputPayload {
	out := make(types.InputPayload, len(p))
	keys := make([]string, 0, len(p))
	for k, m := range p {
		out[k] = m
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		u, ok := units.Lookup(k)
		if !ok {
			continue
		}
		field, ok := unitFields[u.Dimension]
		if !ok || out.Has(field) {
			continue
		}
		m := out[k]
		if m.Unit == "" {
			m.Unit = k
		}
		out[field] = m
		delete(out, k)
	}
	return out
}

// MethodologyFor returns the declared methodology of an activity or, when none is declared,
// the first methodology whose required fields are present in the payload.
func MethodologyFor(activity *types.ActivityRecord) (types.Methodology, error) {
	if activity.Methodology != "" {
		m, err := types.ParseMethodology(string(activity.Methodology))
		if err != nil {
			return "", &InvalidInputError{ActivityID: activity.ID, Message: "unsupported methodology", Cause: err}
		}
		return m, nil
	}
	payload := normalizePayload(activity.Input)
	for _, m := range types.Methodologies {
		if payload.Has(formulas[m].required...) {
			return m, nil
		}
	}
	return "", &InvalidInputError{ActivityID: activity.ID, Message: "cannot infer methodology from input"}
}

// RequiresFactor reports whether the methodology multiplies its input by an emissions factor.
func RequiresFactor(m types.Methodology) bool {
	return formulas[m].needsFactor
}

// ComputeActivityEmissions applies the activity's methodology formula to its input and the
// given factor, returning kilograms of the activity gas. factor may be nil for methodologies
// that do not use one.
func ComputeActivityEmissions(activity *types.ActivityRecord, factor *AppliedFactor) (types.EmissionQuantity, error) {
	m, err := MethodologyFor(activity)
	if err != nil {
		return types.EmissionQuantity{}, err
	}
	f, ok := formulas[m]
	if !ok {
		return types.EmissionQuantity{}, &InvalidInputError{ActivityID: activity.ID, Message: fmt.Sprintf("no formula for %s", m)}
	}

	payload := normalizePayload(activity.Input)
	if err := schemas.ValidatePayload(m, payload); err != nil {
		return types.EmissionQuantity{}, &InvalidInputError{ActivityID: activity.ID, Message: fmt.Sprintf("payload does not match %s", m), Cause: err}
	}
	if f.needsFactor && factor == nil {
		return types.EmissionQuantity{}, &InvalidInputError{ActivityID: activity.ID, Message: fmt.Sprintf("%s requires an emissions factor", m)}
	}

	kg, conversions, err := f.decode(payload).apply(factor)
	if err != nil {
		var convErr *units.ConversionError
		if errors.As(err, &convErr) {
			return types.EmissionQuantity{}, &UnitConversionError{ActivityID: activity.ID, Message: "incompatible units", Cause: err}
		}
		return types.EmissionQuantity{}, &InvalidInputError{ActivityID: activity.ID, Message: "formula failed", Cause: err}
	}

	return types.EmissionQuantity{
		Gas:         activity.Gas,
		Value:       kg,
		Unit:        "kg",
		Methodology: m,
		Conversions: conversions,
	}, nil
}
