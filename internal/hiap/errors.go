// Package hiap runs High-Impact Action Prioritization jobs: it admits ranking requests,
// executes them on a worker pool and persists the resulting action rankings.
package hiap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Submit when the job queue has no free slot.
var ErrQueueFull = errors.New("hiap job queue is full")

// InvalidRequestError indicates a submission that was rejected and never enqueued.
type InvalidRequestError struct {
	Message string
	Cause   error
}

func (e *InvalidRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid request: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Cause
}

// ConflictError indicates that a target city already has a pending or running job.
type ConflictError struct {
	CityID uuid.UUID
	JobID  uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("city %s already has an active job %s", e.CityID, e.JobID)
}

// NotFoundError indicates an unknown job id.
type NotFoundError struct {
	JobID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// InvalidTransitionError indicates a status change the job state machine does not allow.
type InvalidTransitionError struct {
	JobID uuid.UUID
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

// TimeoutError indicates a job that exceeded its wall-clock budget.
type TimeoutError struct {
	JobID  uuid.UUID
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job exceeded its time budget of %s", e.Budget)
}

// JobExecutionError is a failure while ranking one city of a job.
type JobExecutionError struct {
	CityID  uuid.UUID
	Message string
	Cause   error
}

func (e *JobExecutionError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Public())
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return sb.String()
}

// Public describes the failure without its cause, for job status readers.
func (e *JobExecutionError) Public() string {
	if e.CityID != uuid.Nil {
		return fmt.Sprintf("city %s: %s", e.CityID, e.Message)
	}
	return e.Message
}

func (e *JobExecutionError) Unwrap() error {
	return e.Cause
}
