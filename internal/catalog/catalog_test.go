package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dieselFactor(region string, version int) types.EmissionsFactor {
	return types.EmissionsFactor{
		ID:           uuid.New(),
		Version:      version,
		Gas:          types.GasCO2,
		ActivityType: "diesel",
		Region:       region,
		Value:        2.3,
		Unit:         "kg/l",
		PublishedAt:  baseTime,
	}
}

func TestPublish_RejectsInvalidFactors(t *testing.T) {
	c := New(logger.NewNop())

	good := dieselFactor("US", 1)
	badUnit := dieselFactor("US", 1)
	badUnit.Unit = "l/kg"
	badGas := dieselFactor("US", 1)
	badGas.Gas = "SF6"
	badMethod := dieselFactor("US", 1)
	badMethod.Methodology = "guesswork"
	noVersion := dieselFactor("US", 0)

	version, rejected := c.Publish([]types.EmissionsFactor{good, badUnit, badGas, badMethod, noVersion})

	assert.Equal(t, 1, version)
	assert.Equal(t, 1, c.Version())
	require.Len(t, rejected, 4)
	candidates := c.FindCandidates(FactorQuery{Gas: types.GasCO2, ActivityType: "diesel", Region: "US"})
	require.Len(t, candidates, 1)
	assert.Equal(t, good.ID, candidates[0].ID)
}

func TestFindCandidates_RegionSpecificityOrder(t *testing.T) {
	c := New(logger.NewNop())

	global := dieselFactor("", 1)
	country := dieselFactor("US", 1)
	state := dieselFactor("us-ca", 1)
	city := dieselFactor("US-CA-SFO", 1)
	other := dieselFactor("BR", 1)
	c.Publish([]types.EmissionsFactor{global, other, country, city, state})

	got := c.FindCandidates(FactorQuery{Gas: types.GasCO2, ActivityType: "diesel", Region: "US-CA-LAX"})
	require.Len(t, got, 3)
	assert.Equal(t, state.ID, got[0].ID)
	assert.Equal(t, country.ID, got[1].ID)
	assert.Equal(t, global.ID, got[2].ID)
}

func TestFindCandidates_MethodologyAndOverride(t *testing.T) {
	c := New(logger.NewNop())
	inventoryID := uuid.New()

	wildcard := dieselFactor("US", 1)
	exact := dieselFactor("US", 1)
	exact.Methodology = types.MethodologyFuelCombustion
	mismatch := dieselFactor("US", 1)
	mismatch.Methodology = types.MethodologyEnergyConsumption
	override := dieselFactor("", 1)
	override.InventoryID = &inventoryID
	foreignOverride := dieselFactor("US", 1)
	otherInventory := uuid.New()
	foreignOverride.InventoryID = &otherInventory

	c.Publish([]types.EmissionsFactor{wildcard, exact, mismatch, override, foreignOverride})

	got := c.FindCandidates(FactorQuery{
		Gas:          types.GasCO2,
		ActivityType: "Diesel",
		Region:       "US",
		Methodology:  types.MethodologyFuelCombustion,
		InventoryID:  &inventoryID,
	})
	require.Len(t, got, 3)
	assert.Equal(t, override.ID, got[0].ID)
	assert.Equal(t, exact.ID, got[1].ID)
	assert.Equal(t, wildcard.ID, got[2].ID)
}

func TestFindCandidates_NewerPublishedFirst(t *testing.T) {
	c := New(logger.NewNop())
	older := dieselFactor("US", 1)
	newer := dieselFactor("US", 1)
	newer.PublishedAt = baseTime.Add(24 * time.Hour)
	c.Publish([]types.EmissionsFactor{older, newer})

	got := c.FindCandidates(FactorQuery{Gas: types.GasCO2, ActivityType: "diesel", Region: "US"})
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
}

func TestFindCandidates_EmptyIsNotAnError(t *testing.T) {
	c := New(logger.NewNop())
	got := c.FindCandidates(FactorQuery{Gas: types.GasCH4, ActivityType: "landfill", Region: "US"})
	assert.Empty(t, got)
}

func TestPin_DeprecatedVersionsStayReachable(t *testing.T) {
	c := New(logger.NewNop())

	v1 := dieselFactor("US", 1)
	c.Publish([]types.EmissionsFactor{v1})

	v2 := v1
	v2.Version = 2
	v2.Value = 2.5
	v1Deprecated := v1
	v1Deprecated.Deprecated = true
	c.Publish([]types.EmissionsFactor{v1Deprecated, v2})

	got := c.FindCandidates(FactorQuery{Gas: types.GasCO2, ActivityType: "diesel", Region: "US"})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)

	pinned, err := c.Pin(v1.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.3, pinned.Value)

	// dropped from a later publish, still pinnable
	c.Publish(nil)
	pinned, err = c.Pin(v2.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.5, pinned.Value)
	assert.Empty(t, c.FindCandidates(FactorQuery{Gas: types.GasCO2, ActivityType: "diesel", Region: "US"}))
}

func TestPin_NotFound(t *testing.T) {
	c := New(logger.NewNop())
	id := uuid.New()

	_, err := c.Pin(id, 3)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, id, nf.FactorID)
	assert.Equal(t, 3, nf.Version)
}

func TestPublish_RejectsRewrittenVersion(t *testing.T) {
	c := New(logger.NewNop())
	f := dieselFactor("US", 1)
	c.Publish([]types.EmissionsFactor{f})

	edited := f
	edited.Value = 9.9
	_, rejected := c.Publish([]types.EmissionsFactor{edited})
	require.Len(t, rejected, 1)

	pinned, err := c.Pin(f.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.3, pinned.Value)
}

type stubSource struct {
	factors []types.EmissionsFactor
	err     error
}

func (s stubSource) ListEmissionsFactors(context.Context) ([]types.EmissionsFactor, error) {
	return s.factors, s.err
}

func TestRefresh(t *testing.T) {
	c := New(logger.NewNop())

	version, rejected, err := c.Refresh(context.Background(), stubSource{factors: []types.EmissionsFactor{dieselFactor("US", 1)}})
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Empty(t, rejected)

	_, _, err = c.Refresh(context.Background(), stubSource{err: errors.New("connection refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load emissions factors")
	assert.Equal(t, 1, c.Version())
}
