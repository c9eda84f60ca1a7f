// Package types provides type definitions for structured data used throughout the CityCatalyst emissions core.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gas identifies the greenhouse gas an activity or factor refers to.
type Gas string

// Supported gases
const (
	GasCO2  Gas = "CO2"
	GasCH4  Gas = "CH4"
	GasN2O  Gas = "N2O"
	GasCO2e Gas = "CO2e"
)

// gwp100 holds AR5 100-year global warming potentials used to fold gases into CO2e.
var gwp100 = map[Gas]float64{
	GasCO2:  1,
	GasCH4:  28,
	GasN2O:  265,
	GasCO2e: 1,
}

// GWP returns the 100-year global warming potential of the gas and whether it is known.
func (g Gas) GWP() (float64, bool) {
	v, ok := gwp100[g]
	return v, ok
}

// Valid reports whether g is a supported gas.
func (g Gas) Valid() bool {
	_, ok := gwp100[g]
	return ok
}

// Methodology enumerates the input methodologies an activity can be calculated with.
type Methodology string

// Supported methodologies, in inference order.
const (
	MethodologyDirectMeasurement  Methodology = "direct-measurement"
	MethodologyFuelCombustion     Methodology = "fuel-combustion"
	MethodologyEnergyConsumption  Methodology = "energy-consumption"
	MethodologyScaledByPopulation Methodology = "scaled-by-population"
)

// Methodologies lists every supported methodology in inference order.
var Methodologies = []Methodology{
	MethodologyDirectMeasurement,
	MethodologyFuelCombustion,
	MethodologyEnergyConsumption,
	MethodologyScaledByPopulation,
}

// ParseMethodology converts a string to a Methodology. An empty string is allowed and
// means "not declared".
func ParseMethodology(s string) (Methodology, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "", nil
	}
	for _, m := range Methodologies {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown methodology %q", s)
}

// EmissionsFactor is a coefficient converting an activity quantity into a gas mass.
// Identity is (gas, methodology, region, GPC reference, version); ID groups the versions
// of one logical factor.
type EmissionsFactor struct {
	ID           uuid.UUID   `json:"id" validate:"required"`
	Version      int         `json:"version" validate:"gte=1"`
	Gas          Gas         `json:"gas" validate:"required"`
	ActivityType string      `json:"activity_type" validate:"required"`
	Region       string      `json:"region,omitempty"`
	Methodology  Methodology `json:"methodology,omitempty"`
	GPCReference string      `json:"gpc_reference,omitempty"`
	Value        float64     `json:"value" validate:"gte=0"`
	Unit         string      `json:"unit" validate:"required"`
	Deprecated   bool        `json:"deprecated"`
	InventoryID  *uuid.UUID  `json:"inventory_id,omitempty"`
	DataSourceID *uuid.UUID  `json:"data_source_id,omitempty"`
	PublishedAt  time.Time   `json:"published_at"`
}

// Ref returns the id/version pair that pins this factor.
func (f EmissionsFactor) Ref() FactorRef {
	return FactorRef{FactorID: f.ID, Version: f.Version}
}

// FactorRef pins a specific factor version so historical calculations stay reproducible.
type FactorRef struct {
	FactorID uuid.UUID `json:"factor_id" validate:"required"`
	Version  int       `json:"version" validate:"gte=1"`
}

// String renders the reference as id@version.
func (r FactorRef) String() string {
	return fmt.Sprintf("%s@%d", r.FactorID, r.Version)
}

// DataSource describes the provenance of a factor or activity value.
type DataSource struct {
	ID           uuid.UUID         `json:"id" validate:"required"`
	Name         string            `json:"name"`
	SourceType   string            `json:"source_type"`
	Priority     int               `json:"priority"`
	ActivityType string            `json:"activity_type,omitempty"`
	Region       string            `json:"region,omitempty"`
	Deprecated   bool              `json:"deprecated"`
	I18n         map[string]string `json:"i18n,omitempty"`
}

// UserFactor is an emissions factor value entered directly by city staff.
type UserFactor struct {
	Value float64 `json:"value" validate:"gte=0"`
	Unit  string  `json:"unit" validate:"required"`
}
