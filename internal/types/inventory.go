package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Inventory types
const (
	InventoryTypeBasic     = "basic"
	InventoryTypeBasicPlus = "basic-plus"
)

// Measure is a numeric value with an optional unit.
type Measure struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// UnmarshalJSON accepts either a bare number or a {"value", "unit"} object.
func (m *Measure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("measure must be a number or an object: %w", err)
		}
		*m = Measure{Value: v}
		return nil
	}
	type plain Measure
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Measure(p)
	return nil
}

// InputPayload is the schema-less structured input of an activity record.
type InputPayload map[string]Measure

// Has reports whether every named field is present.
func (p InputPayload) Has(fields ...string) bool {
	for _, f := range fields {
		if _, ok := p[f]; !ok {
			return false
		}
	}
	return true
}

// ActivityRecord is a single row of activity data belonging to an inventory.
type ActivityRecord struct {
	ID           uuid.UUID    `json:"id" validate:"required"`
	InventoryID  uuid.UUID    `json:"inventory_id" validate:"required"`
	ActivityType string       `json:"activity_type" validate:"required"`
	Region       string       `json:"region,omitempty"`
	Gas          Gas          `json:"gas" validate:"required"`
	Methodology  Methodology  `json:"methodology,omitempty"`
	DataSourceID *uuid.UUID   `json:"data_source_id,omitempty"`
	UserFactor   *UserFactor  `json:"user_factor,omitempty"`
	PinnedFactor *FactorRef   `json:"pinned_factor,omitempty"`
	Scope        int          `json:"scope" validate:"oneof=1 2 3"`
	Sector       string       `json:"sector" validate:"required"`
	Subsector    string       `json:"subsector,omitempty"`
	Input        InputPayload `json:"input"`
}

// Inventory aggregates activity records for a city and year.
type Inventory struct {
	ID              uuid.UUID `json:"id" validate:"required"`
	CityID          uuid.UUID `json:"city_id" validate:"required"`
	Year            int       `json:"year" validate:"gte=1990"`
	InventoryType   string    `json:"inventory_type" validate:"oneof=basic basic-plus"`
	Region          string    `json:"region,omitempty"`
	Published       bool      `json:"published"`
	SnapshotVersion int       `json:"snapshot_version"`
	// CachedTotal is a memoized projection of the last aggregation, never a source of truth.
	CachedTotal *float64 `json:"cached_total,omitempty"`
}

// EmissionQuantity is the result of applying a formula to one activity.
type EmissionQuantity struct {
	Gas         Gas         `json:"gas"`
	Value       float64     `json:"value"`
	Unit        string      `json:"unit"`
	Methodology Methodology `json:"methodology"`
	Conversions []string    `json:"conversions,omitempty"`
}

// Activity issue kinds
const (
	IssueUnresolved     = "unresolved"
	IssueFactorNotFound = "factor_not_found"
	IssueUnitConversion = "unit_conversion"
	IssueInvalidInput   = "invalid_input"
)

// ActivityIssue explains why an activity was excluded from totals.
type ActivityIssue struct {
	ActivityID uuid.UUID `json:"activity_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
}

// Completeness reports how many activities produced an emission quantity.
type Completeness struct {
	Resolved int     `json:"resolved"`
	Total    int     `json:"total"`
	Ratio    float64 `json:"ratio"`
}

// ActivityFactor records which factor (or user value) an activity was computed with.
type ActivityFactor struct {
	ActivityID   uuid.UUID  `json:"activity_id"`
	Factor       *FactorRef `json:"factor,omitempty"`
	DataSourceID *uuid.UUID `json:"data_source_id,omitempty"`
	UserSupplied bool       `json:"user_supplied,omitempty"`
}

// InventoryTotals is the aggregated read model of an inventory.
type InventoryTotals struct {
	InventoryID  uuid.UUID          `json:"inventory_id"`
	CityID       uuid.UUID          `json:"city_id"`
	Year         int                `json:"year"`
	TotalCO2e    float64            `json:"total_co2e"`
	ByScope      map[int]float64    `json:"by_scope"`
	BySector     map[string]float64 `json:"by_sector"`
	ByGas        map[Gas]float64    `json:"by_gas"`
	Completeness Completeness       `json:"completeness"`
	Issues       []ActivityIssue    `json:"issues,omitempty"`
	FactorPins   []ActivityFactor   `json:"factor_pins,omitempty"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// Complete reports whether every activity was resolved.
func (t InventoryTotals) Complete() bool {
	return t.Completeness.Total == t.Completeness.Resolved
}
