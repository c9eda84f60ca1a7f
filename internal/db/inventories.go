package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Inventory Methods
// -----------------------------------------------------------------------------

const inventoryColumns = `id, city_id, year, inventory_type, region, published, snapshot_version, cached_total`

// SaveInventory inserts or replaces an inventory header. Any change bumps the snapshot
// version so HIAP idempotency keys move with the data.
func (db *DB) SaveInventory(ctx context.Context, inv *types.Inventory) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO inventories (id, city_id, year, inventory_type, region, published, snapshot_version)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)
		 ON CONFLICT (id) DO UPDATE SET
		     city_id = $2,
		     year = $3,
		     inventory_type = $4,
		     region = $5,
		     published = $6,
		     snapshot_version = inventories.snapshot_version + 1,
		     updated_at = NOW()
		 RETURNING snapshot_version`,
		inv.ID, inv.CityID, inv.Year, inv.InventoryType, inv.Region, inv.Published,
	).Scan(&inv.SnapshotVersion)
	if err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}
	return nil
}

// GetInventory retrieves an inventory by ID
func (db *DB) GetInventory(ctx context.Context, id uuid.UUID) (*types.Inventory, error) {
	inv, err := scanInventory(db.pool.QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventories WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	return inv, nil
}

// PublishedInventory returns the most recent published inventory of a city.
func (db *DB) PublishedInventory(ctx context.Context, cityID uuid.UUID) (*types.Inventory, error) {
	inv, err := scanInventory(db.pool.QueryRow(ctx,
		`SELECT `+inventoryColumns+`
		 FROM inventories
		 WHERE city_id = $1 AND published
		 ORDER BY year DESC, updated_at DESC
		 LIMIT 1`, cityID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get published inventory: %w", err)
	}
	return inv, nil
}

// UpdateCachedTotal stores the last aggregated total of an inventory.
func (db *DB) UpdateCachedTotal(ctx context.Context, inventoryID uuid.UUID, total float64) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE inventories SET cached_total = $2 WHERE id = $1`,
		inventoryID, total,
	)
	if err != nil {
		return fmt.Errorf("failed to update cached total: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("inventory not found: %s", inventoryID)
	}
	return nil
}

func scanInventory(row pgx.Row) (*types.Inventory, error) {
	var inv types.Inventory
	if err := row.Scan(&inv.ID, &inv.CityID, &inv.Year, &inv.InventoryType, &inv.Region,
		&inv.Published, &inv.SnapshotVersion, &inv.CachedTotal); err != nil {
		return nil, err
	}
	return &inv, nil
}

// -----------------------------------------------------------------------------
// Activity Methods
// -----------------------------------------------------------------------------

// SaveActivity inserts or replaces an activity record and bumps the owning inventory's
// snapshot version in the same transaction.
func (db *DB) SaveActivity(ctx context.Context, a *types.ActivityRecord) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid activity %s: %w", a.ID, err)
	}
	if !a.Gas.Valid() {
		return fmt.Errorf("invalid activity %s: unsupported gas %q", a.ID, a.Gas)
	}

	inputJSON, err := json.Marshal(a.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal activity input: %w", err)
	}
	var userFactorJSON []byte
	if a.UserFactor != nil {
		if userFactorJSON, err = json.Marshal(a.UserFactor); err != nil {
			return fmt.Errorf("failed to marshal user factor: %w", err)
		}
	}
	var pinnedID *uuid.UUID
	var pinnedVersion *int
	if a.PinnedFactor != nil {
		pinnedID = &a.PinnedFactor.FactorID
		pinnedVersion = &a.PinnedFactor.Version
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO activity_records (id, inventory_id, activity_type, region, gas, methodology,
		     data_source_id, user_factor, pinned_factor_id, pinned_factor_version,
		     scope, sector, subsector, input)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     activity_type = $3, region = $4, gas = $5, methodology = $6,
		     data_source_id = $7, user_factor = $8, pinned_factor_id = $9,
		     pinned_factor_version = $10, scope = $11, sector = $12,
		     subsector = $13, input = $14`,
		a.ID, a.InventoryID, a.ActivityType, a.Region, string(a.Gas), string(a.Methodology),
		a.DataSourceID, userFactorJSON, pinnedID, pinnedVersion,
		a.Scope, a.Sector, a.Subsector, inputJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE inventories SET snapshot_version = snapshot_version + 1, updated_at = NOW()
		 WHERE id = $1`, a.InventoryID); err != nil {
		return fmt.Errorf("failed to bump inventory snapshot: %w", err)
	}

	return tx.Commit(ctx)
}

// ListActivities retrieves all activity records of an inventory
func (db *DB) ListActivities(ctx context.Context, inventoryID uuid.UUID) ([]types.ActivityRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, inventory_id, activity_type, region, gas, methodology, data_source_id,
		        user_factor, pinned_factor_id, pinned_factor_version, scope, sector, subsector, input
		 FROM activity_records
		 WHERE inventory_id = $1
		 ORDER BY id`,
		inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []types.ActivityRecord
	for rows.Next() {
		var a types.ActivityRecord
		var gas, methodology string
		var userFactorJSON, inputJSON []byte
		var pinnedID *uuid.UUID
		var pinnedVersion *int

		if err := rows.Scan(&a.ID, &a.InventoryID, &a.ActivityType, &a.Region, &gas, &methodology,
			&a.DataSourceID, &userFactorJSON, &pinnedID, &pinnedVersion,
			&a.Scope, &a.Sector, &a.Subsector, &inputJSON); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Gas = types.Gas(gas)
		a.Methodology = types.Methodology(methodology)

		if len(userFactorJSON) > 0 {
			a.UserFactor = &types.UserFactor{}
			if err := json.Unmarshal(userFactorJSON, a.UserFactor); err != nil {
				return nil, fmt.Errorf("failed to decode user factor of activity %s: %w", a.ID, err)
			}
		}
		if pinnedID != nil && pinnedVersion != nil {
			a.PinnedFactor = &types.FactorRef{FactorID: *pinnedID, Version: *pinnedVersion}
		}
		if len(inputJSON) > 0 {
			if err := json.Unmarshal(inputJSON, &a.Input); err != nil {
				return nil, fmt.Errorf("failed to decode input of activity %s: %w", a.ID, err)
			}
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}
