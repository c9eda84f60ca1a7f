package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

// -----------------------------------------------------------------------------
// Emissions Factor Methods
// -----------------------------------------------------------------------------

// SaveEmissionsFactor inserts a factor version. Versions are immutable: re-inserting an
// existing id/version only updates its deprecated flag.
func (db *DB) SaveEmissionsFactor(ctx context.Context, f *types.EmissionsFactor) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO emissions_factors (id, version, gas, activity_type, region, methodology,
		     gpc_reference, value, unit, deprecated, inventory_id, data_source_id, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()))
		 ON CONFLICT (id, version) DO UPDATE SET deprecated = $10`,
		f.ID, f.Version, string(f.Gas), f.ActivityType, f.Region, string(f.Methodology),
		f.GPCReference, f.Value, f.Unit, f.Deprecated, f.InventoryID, f.DataSourceID,
		nullIfZeroTime(f),
	)
	if err != nil {
		return fmt.Errorf("failed to save emissions factor %s: %w", f.Ref(), err)
	}
	return nil
}

// ListEmissionsFactors returns every stored factor version.
func (db *DB) ListEmissionsFactors(ctx context.Context) ([]types.EmissionsFactor, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, version, gas, activity_type, region, methodology, gpc_reference,
		        value, unit, deprecated, inventory_id, data_source_id, published_at
		 FROM emissions_factors
		 ORDER BY id, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list emissions factors: %w", err)
	}
	defer rows.Close()

	var factors []types.EmissionsFactor
	for rows.Next() {
		var f types.EmissionsFactor
		var gas, methodology string
		if err := rows.Scan(&f.ID, &f.Version, &gas, &f.ActivityType, &f.Region, &methodology,
			&f.GPCReference, &f.Value, &f.Unit, &f.Deprecated, &f.InventoryID, &f.DataSourceID,
			&f.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan emissions factor: %w", err)
		}
		f.Gas = types.Gas(gas)
		f.Methodology = types.Methodology(methodology)
		factors = append(factors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list emissions factors: %w", err)
	}
	return factors, nil
}

func nullIfZeroTime(f *types.EmissionsFactor) any {
	if f.PublishedAt.IsZero() {
		return nil
	}
	return f.PublishedAt
}

// -----------------------------------------------------------------------------
// Data Source Methods
// -----------------------------------------------------------------------------

// SaveDataSource inserts or updates a data source
func (db *DB) SaveDataSource(ctx context.Context, s *types.DataSource) error {
	var i18nJSON []byte
	if len(s.I18n) > 0 {
		var err error
		if i18nJSON, err = json.Marshal(s.I18n); err != nil {
			return fmt.Errorf("failed to marshal i18n: %w", err)
		}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO data_sources (id, name, source_type, priority, activity_type, region, deprecated, i18n)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     name = $2, source_type = $3, priority = $4, activity_type = $5,
		     region = $6, deprecated = $7, i18n = $8`,
		s.ID, s.Name, s.SourceType, s.Priority, s.ActivityType, s.Region, s.Deprecated, i18nJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save data source: %w", err)
	}
	return nil
}

// ListDataSources returns every data source, deprecated ones included.
func (db *DB) ListDataSources(ctx context.Context) ([]types.DataSource, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, source_type, priority, activity_type, region, deprecated, i18n
		 FROM data_sources
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []types.DataSource
	for rows.Next() {
		var s types.DataSource
		var i18nJSON []byte
		if err := rows.Scan(&s.ID, &s.Name, &s.SourceType, &s.Priority, &s.ActivityType,
			&s.Region, &s.Deprecated, &i18nJSON); err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		if len(i18nJSON) > 0 {
			_ = json.Unmarshal(i18nJSON, &s.I18n)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	return sources, nil
}
