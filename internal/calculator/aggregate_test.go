package calculator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/catalog"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/locking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu          sync.Mutex
	inventories map[uuid.UUID]*types.Inventory
	activities  map[uuid.UUID][]types.ActivityRecord
	sources     []types.DataSource
	cached      map[uuid.UUID]float64
	writes      int
	listDelay   time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		inventories: map[uuid.UUID]*types.Inventory{},
		activities:  map[uuid.UUID][]types.ActivityRecord{},
		cached:      map[uuid.UUID]float64{},
	}
}

func (s *memStore) GetInventory(_ context.Context, id uuid.UUID) (*types.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventories[id], nil
}

func (s *memStore) ListActivities(_ context.Context, id uuid.UUID) ([]types.ActivityRecord, error) {
	time.Sleep(s.listDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activities[id], nil
}

func (s *memStore) ListDataSources(context.Context) ([]types.DataSource, error) {
	return s.sources, nil
}

func (s *memStore) UpdateCachedTotal(_ context.Context, id uuid.UUID, total float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[id] = total
	s.writes++
	return nil
}

type fixture struct {
	calc      *Calculator
	store     *memStore
	catalog   *catalog.Catalog
	inventory *types.Inventory
	source    types.DataSource
	diesel    types.EmissionsFactor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()

	source := types.DataSource{ID: uuid.New(), Name: "EPA", Priority: 5, Region: "US"}
	diesel := types.EmissionsFactor{
		ID:           uuid.New(),
		Version:      1,
		Gas:          types.GasCO2,
		ActivityType: "diesel",
		Region:       "US",
		Value:        2.3,
		Unit:         "kg/l",
		DataSourceID: &source.ID,
		PublishedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	methane := types.EmissionsFactor{
		ID:           uuid.New(),
		Version:      1,
		Gas:          types.GasCH4,
		ActivityType: "landfill",
		Region:       "US",
		Value:        0.05,
		Unit:         "kg/person",
		DataSourceID: &source.ID,
	}

	cat := catalog.New(log)
	_, rejected := cat.Publish([]types.EmissionsFactor{diesel, methane})
	require.Empty(t, rejected)

	store := newMemStore()
	store.sources = []types.DataSource{source}
	inv := &types.Inventory{
		ID:            uuid.New(),
		CityID:        uuid.New(),
		Year:          2023,
		InventoryType: types.InventoryTypeBasic,
		Region:        "US-CA-SFO",
		Published:     true,
	}
	store.inventories[inv.ID] = inv

	calc := New(store, cat, locking.NewLocalLocker(), log)
	calc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	return &fixture{calc: calc, store: store, catalog: cat, inventory: inv, source: source, diesel: diesel}
}

func (f *fixture) dieselActivity(liters float64, sector string, scope int) types.ActivityRecord {
	return types.ActivityRecord{
		ID:           uuid.New(),
		InventoryID:  f.inventory.ID,
		ActivityType: "diesel",
		Gas:          types.GasCO2,
		Methodology:  types.MethodologyFuelCombustion,
		Scope:        scope,
		Sector:       sector,
		Input:        types.InputPayload{"liters": {Value: liters}},
	}
}

func TestAggregateActivities_CompletenessHalf(t *testing.T) {
	f := newFixture(t)

	resolved := f.dieselActivity(100, "transportation", 1)
	unresolved := f.dieselActivity(50, "transportation", 1)
	unresolved.ActivityType = "jet-fuel"

	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{resolved, unresolved}, f.store.sources)

	assert.Equal(t, 230.0, totals.TotalCO2e)
	assert.Equal(t, 1, totals.Completeness.Resolved)
	assert.Equal(t, 2, totals.Completeness.Total)
	assert.Equal(t, 0.5, totals.Completeness.Ratio)
	assert.False(t, totals.Complete())
	require.Len(t, totals.Issues, 1)
	assert.Equal(t, unresolved.ID, totals.Issues[0].ActivityID)
	assert.Equal(t, types.IssueFactorNotFound, totals.Issues[0].Kind)
}

func TestAggregateActivities_UnresolvedWithoutSources(t *testing.T) {
	f := newFixture(t)
	a := f.dieselActivity(100, "transportation", 1)

	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, nil)

	require.Len(t, totals.Issues, 1)
	assert.Equal(t, types.IssueUnresolved, totals.Issues[0].Kind)
	assert.Equal(t, 0.0, totals.Completeness.Ratio)
}

func TestAggregateActivities_OrderIndependent(t *testing.T) {
	f := newFixture(t)

	var activities []types.ActivityRecord
	sectors := []string{"transportation", "stationary-energy", "waste"}
	for i := 0; i < 30; i++ {
		activities = append(activities, f.dieselActivity(0.1*float64(i+1)+1e-7, sectors[i%3], i%3+1))
	}
	broken := f.dieselActivity(1, "waste", 3)
	broken.Input = types.InputPayload{"fuel_amount": {Value: 1, Unit: "kWh"}}
	activities = append(activities, broken)

	want := f.calc.AggregateActivities(f.inventory, activities, f.store.sources)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]types.ActivityRecord, len(activities))
		copy(shuffled, activities)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := f.calc.AggregateActivities(f.inventory, shuffled, f.store.sources)
		assert.Equal(t, want, got)
	}
	require.Len(t, want.Issues, 1)
	assert.Equal(t, types.IssueUnitConversion, want.Issues[0].Kind)
}

func TestAggregateActivities_GroupsAndGWP(t *testing.T) {
	f := newFixture(t)

	fuel := f.dieselActivity(100, "transportation", 1)
	landfill := types.ActivityRecord{
		ID:           uuid.New(),
		InventoryID:  f.inventory.ID,
		ActivityType: "landfill",
		Gas:          types.GasCH4,
		Scope:        3,
		Sector:       "waste",
		Input:        types.InputPayload{"population": {Value: 1000}},
	}
	measured := types.ActivityRecord{
		ID:           uuid.New(),
		InventoryID:  f.inventory.ID,
		ActivityType: "stack",
		Gas:          types.GasN2O,
		Scope:        1,
		Sector:       "industrial-processes",
		Input:        types.InputPayload{"emissions": {Value: 2, Unit: "kg"}},
	}

	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{fuel, landfill, measured}, f.store.sources)

	// CH4: 1000 * 0.05 = 50 kg -> 1400 kg CO2e; N2O: 2 kg -> 530 kg CO2e
	assert.Equal(t, 230.0+1400+530, totals.TotalCO2e)
	assert.Equal(t, 230.0+530, totals.ByScope[1])
	assert.Equal(t, 1400.0, totals.ByScope[3])
	assert.Equal(t, 1400.0, totals.BySector["waste"])
	assert.Equal(t, 50.0, totals.ByGas[types.GasCH4])
	assert.Equal(t, 2.0, totals.ByGas[types.GasN2O])
	assert.True(t, totals.Complete())
	assert.Len(t, totals.FactorPins, 3)
}

func TestAggregateActivities_UserFactorAndPin(t *testing.T) {
	f := newFixture(t)

	user := f.dieselActivity(100, "transportation", 1)
	user.UserFactor = &types.UserFactor{Value: 1, Unit: "kg/l"}

	// v2 supersedes v1 and v1 is deprecated, but an activity pinned to v1 still uses it
	v2 := f.diesel
	v2.Version = 2
	v2.Value = 3
	v1 := f.diesel
	v1.Deprecated = true
	f.catalog.Publish([]types.EmissionsFactor{v1, v2})

	pinned := f.dieselActivity(100, "transportation", 1)
	pinned.PinnedFactor = &types.FactorRef{FactorID: f.diesel.ID, Version: 1}
	latest := f.dieselActivity(100, "transportation", 1)

	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{user, pinned, latest}, f.store.sources)

	assert.Equal(t, 100.0+230+300, totals.TotalCO2e)
	byActivity := map[uuid.UUID]types.ActivityFactor{}
	for _, p := range totals.FactorPins {
		byActivity[p.ActivityID] = p
	}
	assert.True(t, byActivity[user.ID].UserSupplied)
	assert.Nil(t, byActivity[user.ID].Factor)
	assert.Equal(t, 1, byActivity[pinned.ID].Factor.Version)
	assert.Equal(t, 2, byActivity[latest.ID].Factor.Version)
}

func TestAggregateActivities_PinSurvivesDeprecatedSource(t *testing.T) {
	f := newFixture(t)
	a := f.dieselActivity(100, "transportation", 1)
	a.PinnedFactor = &types.FactorRef{FactorID: f.diesel.ID, Version: 1}

	before := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, f.store.sources)
	require.Equal(t, 230.0, before.TotalCO2e)

	deprecated := f.source
	deprecated.Deprecated = true
	after := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, []types.DataSource{deprecated})

	assert.Equal(t, 230.0, after.TotalCO2e)
	assert.Equal(t, 1.0, after.Completeness.Ratio)
	assert.Empty(t, after.Issues)
	require.Len(t, after.FactorPins, 1)
	require.NotNil(t, after.FactorPins[0].DataSourceID)
	assert.Equal(t, f.source.ID, *after.FactorPins[0].DataSourceID)

	// without the pin the deprecated source is not eligible
	a.PinnedFactor = nil
	unpinned := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, []types.DataSource{deprecated})
	require.Len(t, unpinned.Issues, 1)
	assert.Equal(t, types.IssueUnresolved, unpinned.Issues[0].Kind)
}

func TestAggregateActivities_FallbackSkipsDeprecatedSourceFactors(t *testing.T) {
	f := newFixture(t)
	deprecated := f.source
	deprecated.Deprecated = true
	preferred := types.DataSource{ID: uuid.New(), Name: "IPCC", Priority: 7, Region: "US"}

	a := f.dieselActivity(100, "transportation", 1)
	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, []types.DataSource{deprecated, preferred})

	assert.Equal(t, 0.0, totals.TotalCO2e)
	require.Len(t, totals.Issues, 1)
	assert.Equal(t, types.IssueFactorNotFound, totals.Issues[0].Kind)
}

func TestAggregateActivities_FallbackFollowsResolutionOrder(t *testing.T) {
	f := newFixture(t)
	preferred := types.DataSource{ID: uuid.New(), Name: "IPCC", Priority: 7, Region: "US"}

	orphan := f.diesel
	orphan.ID = uuid.New()
	orphan.Value = 9
	orphan.DataSourceID = nil
	_, rejected := f.catalog.Publish([]types.EmissionsFactor{f.diesel, orphan})
	require.Empty(t, rejected)

	a := f.dieselActivity(100, "transportation", 1)
	sources := []types.DataSource{f.source, preferred}
	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, sources)

	// preferred publishes nothing, so the next applicable source wins over the unattributed factor
	assert.Equal(t, 230.0, totals.TotalCO2e)
	require.Len(t, totals.FactorPins, 1)
	require.NotNil(t, totals.FactorPins[0].DataSourceID)
	assert.Equal(t, f.source.ID, *totals.FactorPins[0].DataSourceID)

	// with no applicable attributed factor the unattributed one is used and no source is recorded
	totals = f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, []types.DataSource{preferred})
	assert.Equal(t, 900.0, totals.TotalCO2e)
	require.Len(t, totals.FactorPins, 1)
	assert.Nil(t, totals.FactorPins[0].DataSourceID)
	assert.Equal(t, orphan.ID, totals.FactorPins[0].Factor.FactorID)
}

func TestAggregateActivities_RejectsInvalidRecords(t *testing.T) {
	f := newFixture(t)

	unknownGas := types.ActivityRecord{
		ID:           uuid.New(),
		InventoryID:  f.inventory.ID,
		ActivityType: "switchgear",
		Gas:          types.Gas("SF6"),
		Scope:        1,
		Sector:       "industrial-processes",
		Input:        types.InputPayload{"emissions": {Value: 10, Unit: "t"}},
	}
	badScope := f.dieselActivity(100, "transportation", 4)

	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{unknownGas, badScope}, f.store.sources)

	assert.Equal(t, 0.0, totals.TotalCO2e)
	assert.Equal(t, 0.0, totals.Completeness.Ratio)
	assert.Empty(t, totals.ByGas)
	require.Len(t, totals.Issues, 2)
	for _, issue := range totals.Issues {
		assert.Equal(t, types.IssueInvalidInput, issue.Kind)
	}
}

func TestAggregateActivities_MissingPinFallsBack(t *testing.T) {
	f := newFixture(t)
	a := f.dieselActivity(100, "transportation", 1)
	a.PinnedFactor = &types.FactorRef{FactorID: uuid.New(), Version: 7}

	totals := f.calc.AggregateActivities(f.inventory, []types.ActivityRecord{a}, f.store.sources)
	assert.Equal(t, 230.0, totals.TotalCO2e)
	assert.Empty(t, totals.Issues)
}

func TestAggregateActivities_Empty(t *testing.T) {
	f := newFixture(t)
	totals := f.calc.AggregateActivities(f.inventory, nil, nil)
	assert.Equal(t, 0.0, totals.TotalCO2e)
	assert.Equal(t, 1.0, totals.Completeness.Ratio)
	assert.True(t, totals.Complete())
}

func TestAggregate_WritesCachedTotal(t *testing.T) {
	f := newFixture(t)
	f.store.activities[f.inventory.ID] = []types.ActivityRecord{f.dieselActivity(100, "transportation", 1)}

	totals, err := f.calc.Aggregate(context.Background(), f.inventory.ID)
	require.NoError(t, err)
	assert.Equal(t, 230.0, totals.TotalCO2e)
	assert.Equal(t, f.inventory.CityID, totals.CityID)
	assert.Equal(t, 230.0, f.store.cached[f.inventory.ID])
}

func TestAggregate_ConcurrentRunsAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.store.activities[f.inventory.ID] = []types.ActivityRecord{f.dieselActivity(100, "transportation", 1)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			totals, err := f.calc.Aggregate(context.Background(), f.inventory.ID)
			assert.NoError(t, err)
			assert.Equal(t, 230.0, totals.TotalCO2e)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, f.store.writes)
}

func TestAggregate_InventoryNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.calc.Aggregate(context.Background(), uuid.New())

	var notFound *InventoryNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestAggregate_LockTimeout(t *testing.T) {
	f := newFixture(t)
	locker := locking.NewLocalLocker()
	f.calc.locker = locker

	held, err := locker.Acquire(context.Background(), inventoryLockKey(f.inventory.ID), time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.calc.Aggregate(ctx, f.inventory.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, locking.ErrLockNotAcquired)
}

type expiringLock struct{}

func (expiringLock) Release(context.Context) error { return nil }

func (expiringLock) Extend(context.Context, time.Duration) error { return locking.ErrLockNotHeld }

type expiringLocker struct{}

func (expiringLocker) Acquire(context.Context, string, time.Duration) (locking.Lock, error) {
	return expiringLock{}, nil
}

func TestAggregate_LostLockSkipsWrite(t *testing.T) {
	f := newFixture(t)
	f.calc.locker = expiringLocker{}
	f.calc.lockTTL = 15 * time.Millisecond
	f.store.listDelay = 50 * time.Millisecond
	f.store.activities[f.inventory.ID] = []types.ActivityRecord{f.dieselActivity(100, "transportation", 1)}

	_, err := f.calc.Aggregate(context.Background(), f.inventory.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lost lock")
	assert.Equal(t, 0, f.store.writes)
}
