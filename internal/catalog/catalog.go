package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/metrics"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/units"
	"github.com/google/uuid"
)

// FactorQuery filters catalog candidates. Methodology and InventoryID are optional.
type FactorQuery struct {
	Gas          types.Gas
	ActivityType string
	Region       string
	Methodology  types.Methodology
	InventoryID  *uuid.UUID
}

// FactorSource loads the full factor set from persistence.
type FactorSource interface {
	ListEmissionsFactors(ctx context.Context) ([]types.EmissionsFactor, error)
}

// snapshot is never mutated after it is stored.
type snapshot struct {
	version int
	active  map[string][]types.EmissionsFactor
	history map[types.FactorRef]types.EmissionsFactor
}

// Catalog holds the current factor snapshot. Reads never take a lock; Publish swaps in a
// new snapshot under a writer mutex.
type Catalog struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
	log     *logger.Logger
}

// New creates an empty catalog at version 0.
func New(log *logger.Logger) *Catalog {
	c := &Catalog{log: log.With("component", "EmissionsFactorCatalog")}
	c.current.Store(&snapshot{
		active:  map[string][]types.EmissionsFactor{},
		history: map[types.FactorRef]types.EmissionsFactor{},
	})
	return c
}

func activeKey(gas types.Gas, activityType string) string {
	return string(gas) + "|" + strings.ToLower(strings.TrimSpace(activityType))
}

// Version returns the currently published snapshot version.
func (c *Catalog) Version() int {
	return c.current.Load().version
}

// Publish replaces the visible factor set with factors and returns the new version.
// Invalid entries are rejected and reported. For each factor id only the highest version
// is visible to FindCandidates, and only when it is not deprecated. Every accepted version
// stays pinnable forever; re-publishing an existing id/version with different content is
// rejected so pinned calculations cannot drift.
func (c *Catalog) Publish(factors []types.EmissionsFactor) (int, []Rejected) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	prev := c.current.Load()
	history := make(map[types.FactorRef]types.EmissionsFactor, len(prev.history)+len(factors))
	for ref, f := range prev.history {
		history[ref] = f
	}

	var rejected []Rejected
	latest := make(map[uuid.UUID]types.EmissionsFactor)
	for _, f := range factors {
		f.Region = types.NormalizeRegion(f.Region)
		if reason := validateFactor(&f); reason != "" {
			rejected = append(rejected, Rejected{FactorID: f.ID, Version: f.Version, Reason: reason})
			continue
		}
		if existing, ok := history[f.Ref()]; ok && !sameContent(existing, f) {
			rejected = append(rejected, Rejected{
				FactorID: f.ID,
				Version:  f.Version,
				Reason:   "version already published with different content",
			})
			continue
		}
		history[f.Ref()] = f

		if cur, ok := latest[f.ID]; !ok || f.Version > cur.Version {
			latest[f.ID] = f
		}
	}

	active := make(map[string][]types.EmissionsFactor)
	for _, f := range latest {
		if f.Deprecated {
			continue
		}
		key := activeKey(f.Gas, f.ActivityType)
		active[key] = append(active[key], f)
	}

	next := &snapshot{version: prev.version + 1, active: active, history: history}
	c.current.Store(next)
	metrics.CatalogVersion.Set(float64(next.version))

	if len(rejected) > 0 {
		c.log.Warn("Rejected emissions factors on publish",
			"version", next.version,
			"rejected", len(rejected),
		)
	}
	c.log.Info("Published emissions factor catalog",
		"version", next.version,
		"visible", len(latest),
		"pinnable", len(history),
	)
	return next.version, rejected
}

// Refresh loads every factor from src and publishes them.
func (c *Catalog) Refresh(ctx context.Context, src FactorSource) (int, []Rejected, error) {
	factors, err := src.ListEmissionsFactors(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load emissions factors: %w", err)
	}
	version, rejected := c.Publish(factors)
	return version, rejected, nil
}

func validateFactor(f *types.EmissionsFactor) string {
	if err := f.Validate(); err != nil {
		return err.Error()
	}
	if !f.Gas.Valid() {
		return fmt.Sprintf("unsupported gas %q", f.Gas)
	}
	if f.Methodology != "" {
		if _, err := types.ParseMethodology(string(f.Methodology)); err != nil {
			return err.Error()
		}
	}
	if _, err := units.ParseRate(f.Unit); err != nil {
		return err.Error()
	}
	return ""
}

func sameContent(a, b types.EmissionsFactor) bool {
	return a.Gas == b.Gas &&
		a.ActivityType == b.ActivityType &&
		a.Region == b.Region &&
		a.Methodology == b.Methodology &&
		a.GPCReference == b.GPCReference &&
		a.Value == b.Value &&
		a.Unit == b.Unit
}

// FindCandidates returns the visible factors matching q, most specific first:
// inventory overrides, then deeper region, then exact methodology over wildcard, then the
// most recently published. An empty result means no factor is available.
func (c *Catalog) FindCandidates(q FactorQuery) []types.EmissionsFactor {
	snap := c.current.Load()
	pool := snap.active[activeKey(q.Gas, q.ActivityType)]

	out := make([]types.EmissionsFactor, 0, len(pool))
	for _, f := range pool {
		if !types.RegionCovers(f.Region, q.Region) {
			continue
		}
		if f.Methodology != "" && q.Methodology != "" && f.Methodology != q.Methodology {
			continue
		}
		if f.InventoryID != nil && (q.InventoryID == nil || *f.InventoryID != *q.InventoryID) {
			continue
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ao, bo := a.InventoryID != nil, b.InventoryID != nil; ao != bo {
			return ao
		}
		if da, db := types.RegionDepth(a.Region), types.RegionDepth(b.Region); da != db {
			return da > db
		}
		if q.Methodology != "" {
			if ea, eb := a.Methodology == q.Methodology, b.Methodology == q.Methodology; ea != eb {
				return ea
			}
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		if a.ID != b.ID {
			return a.ID.String() < b.ID.String()
		}
		return a.Version > b.Version
	})
	return out
}

// Pin returns the exact factor version, deprecated or not.
func (c *Catalog) Pin(factorID uuid.UUID, version int) (types.EmissionsFactor, error) {
	f, ok := c.current.Load().history[types.FactorRef{FactorID: factorID, Version: version}]
	if !ok {
		return types.EmissionsFactor{}, &NotFoundError{FactorID: factorID, Version: version}
	}
	return f, nil
}
