package hiap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/locking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/metrics"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/ranking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config sizes the worker pool.
type Config struct {
	Workers         int
	QueueSize       int
	JobTimeout      time.Duration
	BulkConcurrency int
}

// DefaultConfig returns the pool settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       64,
		JobTimeout:      5 * time.Minute,
		BulkConcurrency: 4,
	}
}

const (
	// admissionLockTTL bounds how long a crashed replica can block admission for a city.
	admissionLockTTL = 30 * time.Second
	// admissionWait is how long Submit waits for another replica admitting the same city.
	admissionWait = 10 * time.Second
	// staleGrace is added to the job budget before a running job counts as abandoned.
	staleGrace = 30 * time.Second
)

// Manager owns the lifecycle of HIAP jobs. Submit only admits and enqueues; ranking runs
// on the worker pool started by Start.
type Manager struct {
	cfg         Config
	store       JobStore
	inventories InventorySource
	aggregator  Aggregator
	actions     ActionSource
	locker      locking.Locker
	log         *logger.Logger
	now         func() time.Time

	queue chan uuid.UUID

	mu     sync.Mutex
	active map[uuid.UUID]uuid.UUID // city -> job holding it

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewManager creates a Manager. Zero config values fall back to DefaultConfig. locker
// serializes admission per city; replicas sharing a job store must share a locker too. A
// nil locker is process-local.
func NewManager(cfg Config, store JobStore, inventories InventorySource, aggregator Aggregator, actions ActionSource, locker locking.Locker, log *logger.Logger) *Manager {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = def.BulkConcurrency
	}
	if locker == nil {
		locker = locking.NewLocalLocker()
	}
	return &Manager{
		cfg:         cfg,
		store:       store,
		inventories: inventories,
		aggregator:  aggregator,
		actions:     actions,
		locker:      locker,
		log:         log.With("component", "HiapJobManager"),
		now:         func() time.Time { return time.Now().UTC() },
		queue:       make(chan uuid.UUID, cfg.QueueSize),
		active:      make(map[uuid.UUID]uuid.UUID),
	}
}

func modeLabel(isBulk bool) string {
	if isBulk {
		return "bulk"
	}
	return "single"
}

// Submit validates a ranking request, records a pending job and enqueues it. It returns
// without waiting for the job to run.
func (m *Manager) Submit(ctx context.Context, cityIDs []uuid.UUID, isBulk bool) (uuid.UUID, error) {
	req := types.SubmitJobRequest{CityIDs: cityIDs, IsBulk: isBulk}
	if err := req.Validate(); err != nil {
		metrics.HiapJobsRejected.WithLabelValues(types.JobErrorInvalidRequest).Inc()
		return uuid.Nil, &InvalidRequestError{Message: "at least one city id is required", Cause: err}
	}
	ids := types.SortCityIDs(cityIDs)
	if !isBulk && len(ids) > 1 {
		metrics.HiapJobsRejected.WithLabelValues(types.JobErrorInvalidRequest).Inc()
		return uuid.Nil, &InvalidRequestError{Message: fmt.Sprintf("single-city job given %d cities", len(ids))}
	}

	keys := make([]string, 0, len(ids))
	for _, cityID := range ids {
		inv, err := m.inventories.PublishedInventory(ctx, cityID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to load inventory for city %s: %w", cityID, err)
		}
		if inv == nil {
			metrics.HiapJobsRejected.WithLabelValues(types.JobErrorInvalidRequest).Inc()
			return uuid.Nil, &InvalidRequestError{Message: fmt.Sprintf("city %s has no published inventory", cityID)}
		}
		keys = append(keys, fmt.Sprintf("%s@%d", cityID, inv.SnapshotVersion))
	}

	job := &types.HiapJob{
		ID:             uuid.New(),
		CityIDs:        ids,
		IsBulk:         isBulk,
		Status:         types.JobStatusPending,
		IdempotencyKey: strings.Join(keys, ","),
		CreatedAt:      m.now(),
	}

	if err := m.admit(ctx, job); err != nil {
		return uuid.Nil, err
	}

	if !m.enqueue(job.ID) {
		m.failPending(ctx, job, types.JobErrorQueueFull, "job queue is full")
		metrics.HiapJobsRejected.WithLabelValues(types.JobErrorQueueFull).Inc()
		return uuid.Nil, ErrQueueFull
	}

	metrics.HiapJobsSubmitted.WithLabelValues(modeLabel(isBulk)).Inc()
	m.log.Info("Submitted HIAP job",
		"job_id", job.ID,
		"cities", len(ids),
		"is_bulk", isBulk,
		"idempotency_key", job.IdempotencyKey,
	)
	return job.ID, nil
}

// admit rejects the job when any of its cities is held by another active job, then
// persists it and reserves its cities. The city locks make the check and the insert atomic
// across replicas.
func (m *Manager) admit(ctx context.Context, job *types.HiapJob) error {
	unlock, err := m.lockCities(ctx, job.CityIDs)
	if err != nil {
		return err
	}
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cityID := range job.CityIDs {
		if holder, busy := m.active[cityID]; busy {
			metrics.HiapJobsRejected.WithLabelValues("conflict").Inc()
			return &ConflictError{CityID: cityID, JobID: holder}
		}
	}
	existing, err := m.store.FindActiveJob(ctx, job.CityIDs)
	if err != nil {
		return fmt.Errorf("failed to check active jobs: %w", err)
	}
	if existing != nil {
		metrics.HiapJobsRejected.WithLabelValues("conflict").Inc()
		return &ConflictError{CityID: overlap(existing.CityIDs, job.CityIDs), JobID: existing.ID}
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	for _, cityID := range job.CityIDs {
		m.active[cityID] = job.ID
	}
	return nil
}

// lockCities acquires the admission lock of every city in order. cityIDs must be sorted.
func (m *Manager) lockCities(ctx context.Context, cityIDs []uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, admissionWait)
	defer cancel()

	held := make([]locking.Lock, 0, len(cityIDs))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(context.WithoutCancel(ctx)); err != nil {
				m.log.Warn("Failed to release city admission lock", "error", err)
			}
		}
	}
	for _, cityID := range cityIDs {
		lk, err := m.locker.Acquire(lockCtx, "hiap-city:"+cityID.String(), admissionLockTTL)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("failed to lock city %s for admission: %w", cityID, err)
		}
		held = append(held, lk)
	}
	return unlock, nil
}

func overlap(a, b []uuid.UUID) uuid.UUID {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return x
			}
		}
	}
	return uuid.Nil
}

func (m *Manager) enqueue(id uuid.UUID) bool {
	select {
	case m.queue <- id:
		return true
	default:
		return false
	}
}

// release frees the cities held by a job that reached a terminal state.
func (m *Manager) release(job *types.HiapJob) {
	m.releaseID(job.ID)
}

func (m *Manager) releaseID(jobID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cityID, holder := range m.active {
		if holder == jobID {
			delete(m.active, cityID)
		}
	}
}

func (m *Manager) holdsJob(jobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, holder := range m.active {
		if holder == jobID {
			return true
		}
	}
	return false
}

// GetStatus returns the read model of a job. It never waits on the job's execution.
func (m *Manager) GetStatus(ctx context.Context, jobID uuid.UUID) (types.JobStatusResponse, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return types.JobStatusResponse{}, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return types.JobStatusResponse{}, &NotFoundError{JobID: jobID}
	}
	return types.StatusOf(job), nil
}

// GetRankings returns the rankings of a job. Only succeeded jobs have rankings.
func (m *Manager) GetRankings(ctx context.Context, jobID uuid.UUID) ([]types.ActionRanking, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, &NotFoundError{JobID: jobID}
	}
	if job.Status != types.JobStatusSucceeded {
		return []types.ActionRanking{}, nil
	}
	rankings, err := m.store.ListRankings(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rankings: %w", err)
	}
	return rankings, nil
}

// Cancel fails a pending job with kind "cancelled". Running and terminal jobs cannot be
// cancelled.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID, reason string) (types.JobStatusResponse, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return types.JobStatusResponse{}, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return types.JobStatusResponse{}, &NotFoundError{JobID: jobID}
	}
	if job.Status != types.JobStatusPending {
		return types.JobStatusResponse{}, &InvalidTransitionError{JobID: jobID, From: job.Status, To: types.JobStatusFailed}
	}

	message := "cancelled"
	if reason = strings.TrimSpace(reason); reason != "" {
		message = "cancelled: " + reason
	}
	ok, err := m.store.FailJob(ctx, jobID, types.JobStatusPending, types.JobErrorCancelled, message, m.now())
	if err != nil {
		return types.JobStatusResponse{}, fmt.Errorf("failed to cancel job: %w", err)
	}
	if !ok {
		// a worker picked it up in the meantime
		current, err := m.store.GetJob(ctx, jobID)
		if err != nil {
			return types.JobStatusResponse{}, fmt.Errorf("failed to load job: %w", err)
		}
		return types.JobStatusResponse{}, &InvalidTransitionError{JobID: jobID, From: current.Status, To: types.JobStatusFailed}
	}

	m.release(job)
	metrics.HiapJobsFinished.WithLabelValues(types.JobStatusFailed, types.JobErrorCancelled).Inc()
	m.log.Info("Cancelled HIAP job", "job_id", jobID, "reason", reason)
	return m.GetStatus(ctx, jobID)
}

// failPending marks a job that never started as failed and releases its cities.
func (m *Manager) failPending(ctx context.Context, job *types.HiapJob, kind, message string) {
	if _, err := m.store.FailJob(context.WithoutCancel(ctx), job.ID, types.JobStatusPending, kind, message, m.now()); err != nil {
		m.log.Error("Failed to mark job failed", "job_id", job.ID, "kind", kind, "error", err)
	}
	m.release(job)
	metrics.HiapJobsFinished.WithLabelValues(types.JobStatusFailed, kind).Inc()
}

// Start recovers jobs left behind by a previous process and launches the worker pool.
// Running jobs past their budget are failed as interrupted; pending jobs are enqueued
// again. A sweeper keeps failing abandoned running jobs while the manager runs.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.cancel != nil {
		return errors.New("hiap manager already started")
	}

	if err := m.recoverJobs(ctx); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(workerCtx)
	}
	m.wg.Add(1)
	go m.sweep(workerCtx)
	m.log.Info("Started HIAP worker pool", "workers", m.cfg.Workers, "queue_size", m.cfg.QueueSize)
	return nil
}

func (m *Manager) recoverJobs(ctx context.Context) error {
	if err := m.failStale(ctx); err != nil {
		return err
	}

	pending, err := m.store.ListJobsByStatus(ctx, types.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}
	for i := range pending {
		job := pending[i]
		m.mu.Lock()
		for _, cityID := range job.CityIDs {
			m.active[cityID] = job.ID
		}
		m.mu.Unlock()
		if !m.enqueue(job.ID) {
			m.failPending(ctx, &job, types.JobErrorQueueFull, "job queue is full")
			continue
		}
		m.log.Info("Re-enqueued pending HIAP job", "job_id", job.ID)
	}
	return nil
}

// failStale fails running jobs whose owner stopped making progress: jobs started longer
// ago than their budget plus a grace period. Jobs owned by this manager are skipped, as
// are fresh jobs another replica may still be running.
func (m *Manager) failStale(ctx context.Context) error {
	running, err := m.store.ListJobsByStatus(ctx, types.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running jobs: %w", err)
	}
	cutoff := m.now().Add(-(m.cfg.JobTimeout + staleGrace))
	for _, job := range running {
		if job.StartedAt != nil && job.StartedAt.After(cutoff) {
			continue
		}
		if m.holdsJob(job.ID) {
			continue
		}
		ok, err := m.store.FailJob(ctx, job.ID, types.JobStatusRunning, types.JobErrorInterrupted, "interrupted: job stopped making progress", m.now())
		if err != nil {
			return fmt.Errorf("failed to fail interrupted job %s: %w", job.ID, err)
		}
		if !ok {
			continue
		}
		metrics.HiapJobsFinished.WithLabelValues(types.JobStatusFailed, types.JobErrorInterrupted).Inc()
		m.log.Warn("Failed interrupted HIAP job", "job_id", job.ID, "started_at", job.StartedAt)
	}
	return nil
}

func (m *Manager) sweep(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.JobTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.failStale(ctx); err != nil {
				m.log.Warn("Failed to sweep stale HIAP jobs", "error", err)
			}
		}
	}
}

// Stop stops accepting queued work and waits for running jobs to finish.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.log.Info("Stopped HIAP worker pool")
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-m.queue:
			m.run(ctx, jobID)
		}
	}
}

type runResult struct {
	rankings []types.ActionRanking
	err      error
}

// run executes one job: Pending -> Running -> Succeeded or Failed.
func (m *Manager) run(ctx context.Context, jobID uuid.UUID) {
	// a running job is not interrupted by shutdown, only by its own budget
	ctx = context.WithoutCancel(ctx)
	log := m.log.With("job_id", jobID)

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("Failed to load job", "error", err)
		if _, ferr := m.store.FailJob(ctx, jobID, types.JobStatusPending, types.JobErrorExecution, "failed to load job", m.now()); ferr != nil {
			log.Error("Failed to mark job failed", "error", ferr)
		}
		m.releaseID(jobID)
		metrics.HiapJobsFinished.WithLabelValues(types.JobStatusFailed, types.JobErrorExecution).Inc()
		return
	}
	if job == nil {
		log.Warn("Dequeued unknown job")
		m.releaseID(jobID)
		return
	}

	started, err := m.store.StartJob(ctx, jobID, m.now())
	if err != nil {
		log.Error("Failed to start job", "error", err)
		m.failPending(ctx, job, types.JobErrorExecution, "failed to start job")
		return
	}
	if !started {
		// cancelled while queued, or picked up by another replica
		log.Debug("Skipping job that is no longer pending")
		m.release(job)
		return
	}
	defer m.release(job)

	metrics.HiapJobsInFlight.Inc()
	defer metrics.HiapJobsInFlight.Dec()
	start := time.Now()
	defer func() {
		metrics.HiapJobDuration.WithLabelValues(modeLabel(job.IsBulk)).Observe(time.Since(start).Seconds())
	}()

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.JobTimeout)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HIAP job panic", "panic", r)
				done <- runResult{err: &JobExecutionError{Message: "internal error"}}
			}
		}()
		rankings, err := m.rankCities(runCtx, job)
		done <- runResult{rankings: rankings, err: err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		res = runResult{err: &TimeoutError{JobID: jobID, Budget: m.cfg.JobTimeout}}
	}
	if res.err == nil && runCtx.Err() != nil {
		res = runResult{err: &TimeoutError{JobID: jobID, Budget: m.cfg.JobTimeout}}
	}

	if res.err != nil {
		kind := types.JobErrorExecution
		var timeoutErr *TimeoutError
		if errors.As(res.err, &timeoutErr) {
			kind = types.JobErrorTimeout
		}
		if _, err := m.store.FailJob(ctx, jobID, types.JobStatusRunning, kind, failureMessage(res.err), m.now()); err != nil {
			log.Error("Failed to mark job failed", "error", err)
		}
		metrics.HiapJobsFinished.WithLabelValues(types.JobStatusFailed, kind).Inc()
		log.Warn("HIAP job failed", "kind", kind, "error", res.err)
		return
	}

	ok, err := m.store.CompleteJob(ctx, jobID, res.rankings, m.now())
	if err != nil {
		log.Error("Failed to persist rankings", "error", err)
		if _, ferr := m.store.FailJob(ctx, jobID, types.JobStatusRunning, types.JobErrorExecution, "failed to persist rankings", m.now()); ferr != nil {
			log.Error("Failed to mark job failed", "error", ferr)
		}
		metrics.HiapJobsFinished.WithLabelValues(types.JobStatusFailed, types.JobErrorExecution).Inc()
		return
	}
	if !ok {
		log.Warn("Job left running state before completion")
		return
	}
	metrics.HiapJobsFinished.WithLabelValues(types.JobStatusSucceeded, "").Inc()
	log.Info("HIAP job succeeded", "cities", len(job.CityIDs), "duration", time.Since(start))
}

// failureMessage is the error message stored on a failed job. Causes stay in the logs.
func failureMessage(err error) string {
	var execErr *JobExecutionError
	if errors.As(err, &execErr) {
		return execErr.Public()
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Error()
	}
	return "internal error"
}

// rankCities ranks every city of the job. The first failing city fails the whole job and
// cancels the others; nothing is returned for a partially ranked job.
func (m *Manager) rankCities(ctx context.Context, job *types.HiapJob) ([]types.ActionRanking, error) {
	actions, err := m.actions.ListCandidateActions(ctx)
	if err != nil {
		return nil, &JobExecutionError{Message: "failed to load action catalogue", Cause: err}
	}

	rankings := make([]types.ActionRanking, len(job.CityIDs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.BulkConcurrency)

	for i, cityID := range job.CityIDs {
		g.Go(func() error {
			inv, err := m.inventories.PublishedInventory(gCtx, cityID)
			if err != nil {
				return &JobExecutionError{CityID: cityID, Message: "failed to load inventory", Cause: err}
			}
			if inv == nil {
				return &JobExecutionError{CityID: cityID, Message: "no published inventory"}
			}
			totals, err := m.aggregator.Aggregate(gCtx, inv.ID)
			if err != nil {
				return &JobExecutionError{CityID: cityID, Message: "failed to aggregate inventory", Cause: err}
			}
			rankings[i] = types.ActionRanking{
				JobID:   job.ID,
				CityID:  cityID,
				Actions: ranking.Rank(&totals, actions),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rankings, nil
}
