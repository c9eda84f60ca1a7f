package hiap

import (
	"context"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
)

// JobStore persists jobs and their rankings. Every status change is a compare-and-set on
// the current status; ok is false when the job was no longer in the expected status.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.HiapJob) error
	// GetJob returns nil, nil for an unknown id.
	GetJob(ctx context.Context, id uuid.UUID) (*types.HiapJob, error)
	// FindActiveJob returns a pending or running job targeting any of cityIDs, or nil.
	FindActiveJob(ctx context.Context, cityIDs []uuid.UUID) (*types.HiapJob, error)
	ListJobsByStatus(ctx context.Context, status string) ([]types.HiapJob, error)
	StartJob(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	FailJob(ctx context.Context, id uuid.UUID, from, kind, message string, completedAt time.Time) (bool, error)
	// CompleteJob stores rankings and marks a running job succeeded in one operation.
	CompleteJob(ctx context.Context, id uuid.UUID, rankings []types.ActionRanking, completedAt time.Time) (bool, error)
	ListRankings(ctx context.Context, jobID uuid.UUID) ([]types.ActionRanking, error)
}

// InventorySource finds the inventory a city's ranking is computed from.
type InventorySource interface {
	// PublishedInventory returns the city's latest published inventory, or nil.
	PublishedInventory(ctx context.Context, cityID uuid.UUID) (*types.Inventory, error)
}

// Aggregator computes inventory totals.
type Aggregator interface {
	Aggregate(ctx context.Context, inventoryID uuid.UUID) (types.InventoryTotals, error)
}

// ActionSource lists the climate action catalogue.
type ActionSource interface {
	ListCandidateActions(ctx context.Context) ([]types.CandidateAction, error)
}
