package hiap

import (
	"context"
	"sync"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
)

// memStore is an in-memory JobStore that also records every status a job passes through.
type memStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*types.HiapJob
	rankings map[uuid.UUID][]types.ActionRanking
	history  map[uuid.UUID][]string
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[uuid.UUID]*types.HiapJob{},
		rankings: map[uuid.UUID][]types.ActionRanking{},
		history:  map[uuid.UUID][]string{},
	}
}

func cloneJob(j *types.HiapJob) *types.HiapJob {
	c := *j
	c.CityIDs = append([]uuid.UUID(nil), j.CityIDs...)
	return &c
}

func (s *memStore) CreateJob(_ context.Context, job *types.HiapJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	s.history[job.ID] = append(s.history[job.ID], job.Status)
	return nil
}

func (s *memStore) GetJob(_ context.Context, id uuid.UUID) (*types.HiapJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

func (s *memStore) FindActiveJob(_ context.Context, cityIDs []uuid.UUID) (*types.HiapJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if types.IsTerminalStatus(j.Status) {
			continue
		}
		for _, a := range j.CityIDs {
			for _, b := range cityIDs {
				if a == b {
					return cloneJob(j), nil
				}
			}
		}
	}
	return nil, nil
}

func (s *memStore) ListJobsByStatus(_ context.Context, status string) ([]types.HiapJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.HiapJob
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, *cloneJob(j))
		}
	}
	return out, nil
}

func (s *memStore) transition(id uuid.UUID, from, to string, apply func(*types.HiapJob)) bool {
	j, ok := s.jobs[id]
	if !ok || j.Status != from {
		return false
	}
	j.Status = to
	apply(j)
	s.history[id] = append(s.history[id], to)
	return true
}

func (s *memStore) StartJob(_ context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, types.JobStatusPending, types.JobStatusRunning, func(j *types.HiapJob) {
		j.StartedAt = &startedAt
	}), nil
}

func (s *memStore) FailJob(_ context.Context, id uuid.UUID, from, kind, message string, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, from, types.JobStatusFailed, func(j *types.HiapJob) {
		j.ErrorKind = &kind
		j.ErrorMessage = &message
		j.CompletedAt = &completedAt
	}), nil
}

func (s *memStore) CompleteJob(_ context.Context, id uuid.UUID, rankings []types.ActionRanking, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.transition(id, types.JobStatusRunning, types.JobStatusSucceeded, func(j *types.HiapJob) {
		j.CompletedAt = &completedAt
	})
	if ok {
		s.rankings[id] = rankings
	}
	return ok, nil
}

func (s *memStore) ListRankings(_ context.Context, jobID uuid.UUID) ([]types.ActionRanking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankings[jobID], nil
}

func (s *memStore) rankingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rankings {
		n += len(r)
	}
	return n
}

func (s *memStore) statusHistory(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history[id]...)
}
