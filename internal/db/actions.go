package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

// SaveCandidateAction inserts or updates a catalogue action
func (db *DB) SaveCandidateAction(ctx context.Context, a *types.CandidateAction) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid candidate action %s: %w", a.ID, err)
	}

	var coBenefitsJSON []byte
	if len(a.CoBenefits) > 0 {
		var err error
		if coBenefitsJSON, err = json.Marshal(a.CoBenefits); err != nil {
			return fmt.Errorf("failed to marshal co-benefits: %w", err)
		}
	}
	sectors := a.Sectors
	if sectors == nil {
		sectors = []string{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO candidate_actions (id, name, action_type, sectors, reduction_potential,
		     cost_level, timeline_years, co_benefits)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     name = $2, action_type = $3, sectors = $4, reduction_potential = $5,
		     cost_level = $6, timeline_years = $7, co_benefits = $8`,
		a.ID, a.Name, a.Type, sectors, a.ReductionPotential, a.CostLevel, a.TimelineYears, coBenefitsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save candidate action %s: %w", a.ID, err)
	}
	return nil
}

// ListCandidateActions returns the full action catalogue ordered by id.
func (db *DB) ListCandidateActions(ctx context.Context) ([]types.CandidateAction, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, action_type, sectors, reduction_potential, cost_level, timeline_years, co_benefits
		 FROM candidate_actions
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate actions: %w", err)
	}
	defer rows.Close()

	var actions []types.CandidateAction
	for rows.Next() {
		var a types.CandidateAction
		var coBenefitsJSON []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Sectors, &a.ReductionPotential,
			&a.CostLevel, &a.TimelineYears, &coBenefitsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan candidate action: %w", err)
		}
		if len(coBenefitsJSON) > 0 {
			if err := json.Unmarshal(coBenefitsJSON, &a.CoBenefits); err != nil {
				return nil, fmt.Errorf("failed to decode co-benefits of %s: %w", a.ID, err)
			}
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("invalid candidate action %s in catalogue: %w", a.ID, err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list candidate actions: %w", err)
	}
	return actions, nil
}
