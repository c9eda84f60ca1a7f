package calculator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/catalog"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/locking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/metrics"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/resolver"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// aggregationLockTTL bounds how long a crashed replica blocks an inventory. Live
// aggregations keep extending it.
const aggregationLockTTL = 30 * time.Second

// Store is the persistence boundary of the calculator.
type Store interface {
	// GetInventory returns nil, nil when the inventory does not exist.
	GetInventory(ctx context.Context, id uuid.UUID) (*types.Inventory, error)
	ListActivities(ctx context.Context, inventoryID uuid.UUID) ([]types.ActivityRecord, error)
	ListDataSources(ctx context.Context) ([]types.DataSource, error)
	UpdateCachedTotal(ctx context.Context, inventoryID uuid.UUID, total float64) error
}

// FactorCatalog is the read side of the emissions factor catalog.
type FactorCatalog interface {
	FindCandidates(q catalog.FactorQuery) []types.EmissionsFactor
	Pin(factorID uuid.UUID, version int) (types.EmissionsFactor, error)
}

// Calculator aggregates inventories.
type Calculator struct {
	store   Store
	catalog FactorCatalog
	locker  locking.Locker
	log     *logger.Logger
	now     func() time.Time
	lockTTL time.Duration
}

// New creates a Calculator. locker guards the per-inventory aggregation and write-back.
func New(store Store, factors FactorCatalog, locker locking.Locker, log *logger.Logger) *Calculator {
	return &Calculator{
		store:   store,
		catalog: factors,
		locker:  locker,
		log:     log.With("component", "InventoryCalculator"),
		now:     time.Now,
		lockTTL: aggregationLockTTL,
	}
}

func inventoryLockKey(id uuid.UUID) string {
	return "inventory:" + id.String()
}

// Aggregate recomputes the totals of an inventory from its activity records and writes the
// total back as the inventory's cached value. Only one aggregation per inventory runs at a
// time. Per-activity failures are reported in the totals, never returned as errors.
func (c *Calculator) Aggregate(ctx context.Context, inventoryID uuid.UUID) (types.InventoryTotals, error) {
	start := time.Now()

	lock, err := c.locker.Acquire(ctx, inventoryLockKey(inventoryID), c.lockTTL)
	if err != nil {
		return types.InventoryTotals{}, fmt.Errorf("failed to lock inventory %s: %w", inventoryID, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("Failed to release inventory lock", "inventory_id", inventoryID, "error", err)
		}
	}()

	var lost atomic.Bool
	stop := locking.KeepAlive(ctx, lock, c.lockTTL, func(err error) {
		lost.Store(true)
		c.log.Warn("Lost inventory lock", "inventory_id", inventoryID, "error", err)
	})
	defer stop()

	inv, err := c.store.GetInventory(ctx, inventoryID)
	if err != nil {
		return types.InventoryTotals{}, fmt.Errorf("failed to load inventory: %w", err)
	}
	if inv == nil {
		return types.InventoryTotals{}, &InventoryNotFoundError{InventoryID: inventoryID}
	}

	activities, err := c.store.ListActivities(ctx, inventoryID)
	if err != nil {
		return types.InventoryTotals{}, fmt.Errorf("failed to load activities: %w", err)
	}
	sources, err := c.store.ListDataSources(ctx)
	if err != nil {
		return types.InventoryTotals{}, fmt.Errorf("failed to load data sources: %w", err)
	}

	totals := c.AggregateActivities(inv, activities, sources)

	stop()
	if lost.Load() {
		return types.InventoryTotals{}, fmt.Errorf("lost lock on inventory %s before writing totals", inventoryID)
	}
	if err := c.store.UpdateCachedTotal(ctx, inventoryID, totals.TotalCO2e); err != nil {
		return types.InventoryTotals{}, fmt.Errorf("failed to write cached total: %w", err)
	}

	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	c.log.Info("Aggregated inventory",
		"inventory_id", inventoryID,
		"total_co2e", totals.TotalCO2e,
		"resolved", totals.Completeness.Resolved,
		"activities", totals.Completeness.Total,
	)
	return totals, nil
}

// AggregateActivities computes totals for the given activities without touching storage.
// Activities are processed in id order and summed in decimal so the result does not depend
// on input order.
func (c *Calculator) AggregateActivities(inv *types.Inventory, activities []types.ActivityRecord, sources []types.DataSource) types.InventoryTotals {
	sorted := make([]types.ActivityRecord, len(activities))
	copy(sorted, activities)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	total := decimal.Zero
	byScope := map[int]decimal.Decimal{}
	bySector := map[string]decimal.Decimal{}
	byGas := map[types.Gas]decimal.Decimal{}

	totals := types.InventoryTotals{
		InventoryID: inv.ID,
		CityID:      inv.CityID,
		Year:        inv.Year,
	}

	for i := range sorted {
		a := sorted[i]
		if a.Region == "" {
			a.Region = inv.Region
		}

		qty, pin, issue := c.computeOne(inv, &a, sources)
		if issue != nil {
			totals.Issues = append(totals.Issues, *issue)
			metrics.ActivitiesProcessed.WithLabelValues(issue.Kind).Inc()
			continue
		}
		metrics.ActivitiesProcessed.WithLabelValues("resolved").Inc()
		totals.Completeness.Resolved++
		totals.FactorPins = append(totals.FactorPins, pin)

		mass := decimal.NewFromFloat(qty.Value)
		gwp, _ := qty.Gas.GWP()
		co2e := mass.Mul(decimal.NewFromFloat(gwp))

		total = total.Add(co2e)
		byScope[a.Scope] = byScope[a.Scope].Add(co2e)
		bySector[a.Sector] = bySector[a.Sector].Add(co2e)
		byGas[qty.Gas] = byGas[qty.Gas].Add(mass)
	}

	totals.Completeness.Total = len(sorted)
	totals.Completeness.Ratio = 1
	if totals.Completeness.Total > 0 {
		totals.Completeness.Ratio = float64(totals.Completeness.Resolved) / float64(totals.Completeness.Total)
	}

	totals.TotalCO2e = total.InexactFloat64()
	totals.ByScope = make(map[int]float64, len(byScope))
	for k, v := range byScope {
		totals.ByScope[k] = v.InexactFloat64()
	}
	totals.BySector = make(map[string]float64, len(bySector))
	for k, v := range bySector {
		totals.BySector[k] = v.InexactFloat64()
	}
	totals.ByGas = make(map[types.Gas]float64, len(byGas))
	for k, v := range byGas {
		totals.ByGas[k] = v.InexactFloat64()
	}
	totals.ComputedAt = c.now().UTC()
	return totals
}

// computeOne resolves the factor for one activity and applies its formula. Exactly one of
// the quantity or the issue is meaningful.
func (c *Calculator) computeOne(inv *types.Inventory, a *types.ActivityRecord, sources []types.DataSource) (types.EmissionQuantity, types.ActivityFactor, *types.ActivityIssue) {
	pin := types.ActivityFactor{ActivityID: a.ID}

	if !a.Gas.Valid() {
		return types.EmissionQuantity{}, pin, &types.ActivityIssue{
			ActivityID: a.ID,
			Kind:       types.IssueInvalidInput,
			Message:    fmt.Sprintf("unsupported gas %q", a.Gas),
		}
	}
	if err := a.Validate(); err != nil {
		return types.EmissionQuantity{}, pin, &types.ActivityIssue{
			ActivityID: a.ID,
			Kind:       types.IssueInvalidInput,
			Message:    fmt.Sprintf("invalid activity record: %v", err),
		}
	}

	m, err := MethodologyFor(a)
	if err != nil {
		return types.EmissionQuantity{}, pin, issueFor(a.ID, err)
	}
	a.Methodology = m

	if !RequiresFactor(m) {
		qty, err := ComputeActivityEmissions(a, nil)
		if err != nil {
			return types.EmissionQuantity{}, pin, issueFor(a.ID, err)
		}
		return qty, pin, nil
	}

	var factor *AppliedFactor
	if a.UserFactor != nil {
		factor = FromUser(*a.UserFactor)
		pin.UserSupplied = true
	} else {
		f, issue := c.catalogFactor(inv, a, m, sources)
		if issue != nil {
			return types.EmissionQuantity{}, pin, issue
		}
		factor = FromCatalog(f)
		pin.Factor = factor.Ref
		pin.DataSourceID = f.DataSourceID
	}

	qty, err := ComputeActivityEmissions(a, factor)
	if err != nil {
		return types.EmissionQuantity{}, pin, issueFor(a.ID, err)
	}
	return qty, pin, nil
}

// catalogFactor returns the activity's pinned factor when that version was ever published,
// without consulting data sources.
// Otherwise it takes the most specific candidate of the resolved source, then of the other
// applicable sources in resolution order, then one not attributed to any source. Factors of
// deprecated or inapplicable sources are never used unpinned.
func (c *Calculator) catalogFactor(inv *types.Inventory, a *types.ActivityRecord, m types.Methodology, sources []types.DataSource) (types.EmissionsFactor, *types.ActivityIssue) {
	if a.PinnedFactor != nil {
		f, err := c.catalog.Pin(a.PinnedFactor.FactorID, a.PinnedFactor.Version)
		if err == nil {
			return f, nil
		}
		c.log.Warn("Pinned factor missing, falling back to catalog candidates",
			"activity_id", a.ID,
			"factor", a.PinnedFactor.String(),
			"error", err,
		)
	}

	resolved, err := resolver.Resolve(a, sources)
	if err != nil {
		return types.EmissionsFactor{}, issueFor(a.ID, err)
	}

	candidates := c.catalog.FindCandidates(catalog.FactorQuery{
		Gas:          a.Gas,
		ActivityType: a.ActivityType,
		Region:       a.Region,
		Methodology:  m,
		InventoryID:  &inv.ID,
	})

	order := append([]types.DataSource{*resolved.Source}, resolver.Applicable(a, sources)...)
	for _, ds := range order {
		for _, f := range candidates {
			if f.DataSourceID != nil && *f.DataSourceID == ds.ID {
				return f, nil
			}
		}
	}
	for _, f := range candidates {
		if f.DataSourceID == nil {
			return f, nil
		}
	}

	return types.EmissionsFactor{}, &types.ActivityIssue{
		ActivityID: a.ID,
		Kind:       types.IssueFactorNotFound,
		Message:    fmt.Sprintf("no %s factor for %s in region %q", a.Gas, a.ActivityType, a.Region),
	}
}

func issueFor(activityID uuid.UUID, err error) *types.ActivityIssue {
	kind := types.IssueInvalidInput
	var (
		unresolved *resolver.UnresolvedError
		convErr    *UnitConversionError
		notFound   *catalog.NotFoundError
	)
	switch {
	case errors.As(err, &unresolved):
		kind = types.IssueUnresolved
	case errors.As(err, &convErr):
		kind = types.IssueUnitConversion
	case errors.As(err, &notFound):
		kind = types.IssueFactorNotFound
	}
	return &types.ActivityIssue{ActivityID: activityID, Kind: kind, Message: err.Error()}
}
