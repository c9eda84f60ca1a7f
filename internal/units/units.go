// Package units converts activity and emission quantities between units of the same dimension.
package units

import (
	"fmt"
	"strings"
)

// Dimension classifies what a unit measures.
type Dimension string

// Supported dimensions
const (
	Mass          Dimension = "mass"
	Volume        Dimension = "volume"
	Energy        Dimension = "energy"
	Count         Dimension = "count"
	Dimensionless Dimension = "dimensionless"
)

// Unit describes a unit symbol and its scale relative to the dimension's base unit
// (kg, l, kWh, person, 1).
type Unit struct {
	Symbol    string
	Dimension Dimension
	ToBase    float64
}

var table = map[string]Unit{
	// mass, base kg
	"g":      {"g", Mass, 0.001},
	"kg":     {"kg", Mass, 1},
	"t":      {"t", Mass, 1000},
	"tonne":  {"t", Mass, 1000},
	"tonnes": {"t", Mass, 1000},
	"kt":     {"kt", Mass, 1e6},
	"lb":     {"lb", Mass, 0.45359237},

	// volume, base litre
	"ml":     {"ml", Volume, 0.001},
	"l":      {"l", Volume, 1},
	"liter":  {"l", Volume, 1},
	"liters": {"l", Volume, 1},
	"litre":  {"l", Volume, 1},
	"litres": {"l", Volume, 1},
	"m3":     {"m3", Volume, 1000},
	"gal":    {"gal", Volume, 3.785411784},
	"gallon": {"gal", Volume, 3.785411784},

	// energy, base kWh
	"wh":  {"Wh", Energy, 0.001},
	"kwh": {"kWh", Energy, 1},
	"mwh": {"MWh", Energy, 1000},
	"gwh": {"GWh", Energy, 1e6},
	"mj":  {"MJ", Energy, 1 / 3.6},
	"gj":  {"GJ", Energy, 1000 / 3.6},
	"tj":  {"TJ", Energy, 1e6 / 3.6},

	// count, base person
	"person":  {"person", Count, 1},
	"persons": {"person", Count, 1},
	"people":  {"person", Count, 1},
	"capita":  {"person", Count, 1},
	"cap":     {"person", Count, 1},

	// dimensionless
	"":         {"", Dimensionless, 1},
	"1":        {"", Dimensionless, 1},
	"fraction": {"", Dimensionless, 1},
	"%":        {"%", Dimensionless, 0.01},
}

// Lookup returns the unit for a symbol. Symbols are case-insensitive.
func Lookup(symbol string) (Unit, bool) {
	u, ok := table[normalize(symbol)]
	return u, ok
}

func normalize(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "³", "3")
	return s
}

// Convert converts value from one unit to another of the same dimension.
func Convert(value float64, from, to string) (float64, error) {
	fu, ok := Lookup(from)
	if !ok {
		return 0, &ConversionError{From: from, To: to, Reason: fmt.Sprintf("unknown unit %q", from)}
	}
	tu, ok := Lookup(to)
	if !ok {
		return 0, &ConversionError{From: from, To: to, Reason: fmt.Sprintf("unknown unit %q", to)}
	}
	if fu.Dimension != tu.Dimension {
		return 0, &ConversionError{
			From:   from,
			To:     to,
			Reason: fmt.Sprintf("cannot convert %s to %s", fu.Dimension, tu.Dimension),
		}
	}
	return value * fu.ToBase / tu.ToBase, nil
}

// DimensionOf returns the dimension of a unit symbol.
func DimensionOf(symbol string) (Dimension, bool) {
	u, ok := Lookup(symbol)
	if !ok {
		return "", false
	}
	return u.Dimension, true
}

// Rate is a factor unit of the form <mass>/<activity unit>, e.g. kg/l.
type Rate struct {
	Numerator   Unit
	Denominator Unit
}

// ParseRate parses a factor unit such as "kg/l" or "t/TJ". The numerator must be a mass.
func ParseRate(symbol string) (Rate, error) {
	num, den, found := strings.Cut(symbol, "/")
	if !found {
		return Rate{}, &ConversionError{From: symbol, Reason: "factor unit must have the form <mass>/<unit>"}
	}
	nu, ok := Lookup(num)
	if !ok {
		return Rate{}, &ConversionError{From: symbol, Reason: fmt.Sprintf("unknown unit %q", num)}
	}
	if nu.Dimension != Mass {
		return Rate{}, &ConversionError{From: symbol, Reason: "factor numerator must be a mass unit"}
	}
	du, ok := Lookup(den)
	if !ok {
		return Rate{}, &ConversionError{From: symbol, Reason: fmt.Sprintf("unknown unit %q", den)}
	}
	return Rate{Numerator: nu, Denominator: du}, nil
}

// ConversionError reports a unit that is unknown or of the wrong dimension.
type ConversionError struct {
	From   string
	To     string
	Reason string
}

func (e *ConversionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("unit %q: %s", e.From, e.Reason)
	}
	return fmt.Sprintf("unit %q -> %q: %s", e.From, e.To, e.Reason)
}
