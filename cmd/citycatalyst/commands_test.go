package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventoryJSON = `{
  "inventory": {
    "id": "6f1c2d3e-0000-4000-8000-000000000001",
    "city_id": "6f1c2d3e-0000-4000-8000-0000000000c1",
    "year": 2023,
    "inventory_type": "basic",
    "region": "US-CA",
    "published": true
  },
  "data_sources": [
    {"id": "6f1c2d3e-0000-4000-8000-0000000000d1", "name": "EPA", "priority": 5, "region": "US"}
  ],
  "emissions_factors": [
    {
      "id": "6f1c2d3e-0000-4000-8000-0000000000f1",
      "version": 1,
      "gas": "CO2",
      "activity_type": "diesel",
      "region": "US",
      "value": 2.3,
      "unit": "kg/l",
      "data_source_id": "6f1c2d3e-0000-4000-8000-0000000000d1"
    },
    {
      "id": "6f1c2d3e-0000-4000-8000-0000000000f2",
      "version": 1,
      "gas": "CO2",
      "activity_type": "broken",
      "value": 1,
      "unit": "furlongs"
    }
  ],
  "activities": [
    {
      "id": "6f1c2d3e-0000-4000-8000-0000000000a1",
      "activity_type": "diesel",
      "gas": "CO2",
      "scope": 1,
      "sector": "transportation",
      "input": {"liters": 100}
    },
    {
      "id": "6f1c2d3e-0000-4000-8000-0000000000a2",
      "activity_type": "coal",
      "gas": "CO2",
      "scope": 1,
      "sector": "stationary-energy",
      "input": {"fuel_amount": {"value": 3, "unit": "t"}}
    }
  ]
}`

const actionsJSON = `[
  {"id": "bus-electrification", "name": "Electrify buses", "type": "mitigation",
   "sectors": ["transportation"], "reduction_potential": 0.4, "cost_level": "medium",
   "timeline_years": 4, "co_benefits": {"air_quality": 2}},
  {"id": "building-retrofit", "name": "Retrofit buildings", "type": "mitigation",
   "sectors": ["stationary-energy"], "reduction_potential": 0.3, "cost_level": "high",
   "timeline_years": 8},
  {"id": "tree-planting", "name": "Urban trees", "type": "adaptation",
   "sectors": ["afolu"], "reduction_potential": 0.05, "cost_level": "low", "timeline_years": 2}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAggregateFile(t *testing.T) {
	path := writeFile(t, "inventory.json", inventoryJSON)

	totals, err := aggregateFile(path, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 230.0, totals.TotalCO2e)
	assert.Equal(t, 230.0, totals.ByScope[1])
	assert.Equal(t, 230.0, totals.BySector["transportation"])
	assert.Equal(t, 1, totals.Completeness.Resolved)
	assert.Equal(t, 2, totals.Completeness.Total)
	assert.Equal(t, 0.5, totals.Completeness.Ratio)

	require.Len(t, totals.Issues, 1)
	assert.Equal(t, "6f1c2d3e-0000-4000-8000-0000000000a2", totals.Issues[0].ActivityID.String())

	require.Len(t, totals.FactorPins, 1)
	require.NotNil(t, totals.FactorPins[0].Factor)
	assert.Equal(t, "6f1c2d3e-0000-4000-8000-0000000000f1@1", totals.FactorPins[0].Factor.String())
}

func TestAggregateFile_SchemaViolation(t *testing.T) {
	path := writeFile(t, "inventory.json", `{"inventory": {"id": "x", "city_id": "y", "year": 1800}, "activities": []}`)

	_, err := aggregateFile(path, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestAggregateFile_Missing(t *testing.T) {
	_, err := aggregateFile(filepath.Join(t.TempDir(), "nope.json"), logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read inventory file")
}

func TestRankFiles(t *testing.T) {
	totals, err := aggregateFile(writeFile(t, "inventory.json", inventoryJSON), logger.NewNop())
	require.NoError(t, err)
	totalsJSON, err := json.Marshal(totals)
	require.NoError(t, err)

	totalsPath := writeFile(t, "totals.json", string(totalsJSON))
	actionsPath := writeFile(t, "actions.json", actionsJSON)

	scored, err := rankFiles(totalsPath, actionsPath, 0)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, "bus-electrification", scored[0].ActionID, "all emissions are in transportation")
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}

	top, err := rankFiles(totalsPath, actionsPath, 1)
	require.NoError(t, err)
	assert.Equal(t, scored[:1], top)
}

func TestRankFiles_InvalidCatalogue(t *testing.T) {
	totalsPath := writeFile(t, "totals.json", `{"total_co2e": 0}`)
	actionsPath := writeFile(t, "actions.json", `[{"id": "a", "sectors": [], "reduction_potential": 2}]`)

	_, err := rankFiles(totalsPath, actionsPath, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action catalogue")
}

func TestReadInventoryFile_AttachesActivities(t *testing.T) {
	f, err := readInventoryFile(writeFile(t, "inventory.json", inventoryJSON))
	require.NoError(t, err)

	for _, a := range f.Activities {
		assert.Equal(t, f.Inventory.ID, a.InventoryID)
	}
	assert.Equal(t, types.InventoryTypeBasic, f.Inventory.InventoryType)
}

func TestWriteJSON_File(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, writeJSON(out, map[string]int{"a": 1}))

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(content))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "aggregate", "rank", "import"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
