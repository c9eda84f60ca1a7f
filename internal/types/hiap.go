package types

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus constants
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Job error kinds
const (
	JobErrorInvalidRequest = "invalid_request"
	JobErrorTimeout        = "timeout"
	JobErrorExecution      = "execution"
	JobErrorCancelled      = "cancelled"
	JobErrorInterrupted    = "interrupted"
	JobErrorQueueFull      = "queue_full"
)

// IsTerminalStatus reports whether status is succeeded or failed.
func IsTerminalStatus(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}

// HiapJob represents one High-Impact Action Prioritization ranking run.
type HiapJob struct {
	ID             uuid.UUID   `json:"id"`
	CityIDs        []uuid.UUID `json:"city_ids"`
	IsBulk         bool        `json:"is_bulk"`
	Status         string      `json:"status"`
	ErrorKind      *string     `json:"error_kind,omitempty"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	IdempotencyKey string      `json:"idempotency_key"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// SortCityIDs sorts ids in byte order and drops duplicates.
func SortCityIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	return out
}

// CandidateAction is an entry of the climate action catalogue.
type CandidateAction struct {
	ID                 string         `json:"id" validate:"required"`
	Name               string         `json:"name"`
	Type               string         `json:"type" validate:"omitempty,oneof=mitigation adaptation"`
	Sectors            []string       `json:"sectors"`
	ReductionPotential float64        `json:"reduction_potential" validate:"gte=0,lte=1"`
	CostLevel          string         `json:"cost_level,omitempty" validate:"omitempty,oneof=low medium high"`
	TimelineYears      int            `json:"timeline_years,omitempty" validate:"gte=0"`
	CoBenefits         map[string]int `json:"co_benefits,omitempty" validate:"dive,gte=-2,lte=2"`
}

// ScoredAction is one ranked entry produced by the ranking engine.
type ScoredAction struct {
	ActionID  string  `json:"action_id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// ActionRanking is the ordered ranking for one city within a job.
type ActionRanking struct {
	JobID   uuid.UUID      `json:"job_id"`
	CityID  uuid.UUID      `json:"city_id"`
	Actions []ScoredAction `json:"actions"`
}

// SubmitJobRequest is the job submission payload accepted from API callers.
type SubmitJobRequest struct {
	CityIDs []uuid.UUID `json:"city_ids" validate:"required,min=1"`
	IsBulk  bool        `json:"is_bulk"`
}

// SubmitJobResponse is returned once a job has been accepted.
type SubmitJobResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

// JobStatusResponse is the polling read model of a job.
type JobStatusResponse struct {
	JobID        uuid.UUID   `json:"job_id"`
	Status       string      `json:"status"`
	ErrorKind    *string     `json:"error_kind,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	IsBulk       bool        `json:"is_bulk"`
	CityIDs      []uuid.UUID `json:"city_ids"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// StatusOf builds the read model for a job.
func StatusOf(job *HiapJob) JobStatusResponse {
	return JobStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		IsBulk:       job.IsBulk,
		CityIDs:      job.CityIDs,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}
