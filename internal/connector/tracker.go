package connector

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nmarwaha/traindock/internal/cache"
	"github.com/nmarwaha/traindock/internal/store"
	"github.com/nmarwaha/traindock/pkg/models"
)

const terminalResultTTL = 24 * time.Hour

// Tracker is the per-job normalized state machine. States move
// pending -> running -> one of completed/failed/cancelled; terminal entries
// are immutable and answered locally, so aggressive pollers never generate
// extra provider round-trips. Entries are never deleted by the core.
type Tracker struct {
	mu    sync.RWMutex
	jobs  map[string]*models.Job
	cache cache.Cache
	store store.Store
}

// NewTracker creates a Tracker. cache and store are optional write-through
// sinks; either may be nil.
func NewTracker(c cache.Cache, s store.Store) *Tracker {
	return &Tracker{
		jobs:  make(map[string]*models.Job),
		cache: c,
		store: s,
	}
}

func jobKey(connectorName, jobID string) string {
	return connectorName + "/" + jobID
}

// Register records a freshly submitted job in the pending state.
func (t *Tracker) Register(ctx context.Context, connectorName, jobID string) *models.Job {
	now := time.Now().UTC()
	job := &models.Job{
		ID:        jobID,
		Connector: connectorName,
		State:     models.JobStatePending,
		CreatedAt: now,
	}

	t.mu.Lock()
	t.jobs[jobKey(connectorName, jobID)] = job
	t.mu.Unlock()

	t.persist(ctx, job, true)
	return job
}

// Lookup returns a copy of the tracked job, if any.
func (t *Tracker) Lookup(connectorName, jobID string) (*models.Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[jobKey(connectorName, jobID)]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// Apply merges a provider-reported status into the tracked job and returns
// the normalized result. Terminal entries never change; backward transitions
// reported by a provider (running -> pending) are ignored.
func (t *Tracker) Apply(ctx context.Context, connectorName string, polled *models.Job) *models.Job {
	now := time.Now().UTC()

	t.mu.Lock()
	key := jobKey(connectorName, polled.ID)
	job, ok := t.jobs[key]
	if !ok {
		job = &models.Job{
			ID:        polled.ID,
			Connector: connectorName,
			State:     models.JobStatePending,
			CreatedAt: now,
		}
		t.jobs[key] = job
	}

	if job.IsTerminal() {
		copied := *job
		t.mu.Unlock()
		return &copied
	}

	job.LastPolledAt = now
	if advances(job.State, polled.State) {
		job.State = polled.State
		if job.IsTerminal() {
			job.TerminalResult = polled.TerminalResult
			if job.TerminalResult == nil {
				job.TerminalResult = &models.TerminalResult{
					State:      job.State,
					FinishedAt: now,
				}
			}
		}
	}
	copied := *job
	t.mu.Unlock()

	t.persist(ctx, &copied, false)
	return &copied
}

// MarkCancelled transitions a non-terminal job to cancelled. Returns false
// when the job is already terminal, leaving it unchanged.
func (t *Tracker) MarkCancelled(ctx context.Context, connectorName, jobID, message string) bool {
	now := time.Now().UTC()

	t.mu.Lock()
	job, ok := t.jobs[jobKey(connectorName, jobID)]
	if !ok || job.IsTerminal() {
		t.mu.Unlock()
		return false
	}
	job.State = models.JobStateCancelled
	job.TerminalResult = &models.TerminalResult{
		State:      models.JobStateCancelled,
		Message:    message,
		FinishedAt: now,
	}
	copied := *job
	t.mu.Unlock()

	t.persist(ctx, &copied, false)
	return true
}

// advances reports whether the state machine permits from -> to.
func advances(from, to string) bool {
	if from == to {
		return false
	}
	switch from {
	case models.JobStatePending:
		return to == models.JobStateRunning || models.IsTerminalState(to)
	case models.JobStateRunning:
		return models.IsTerminalState(to)
	default:
		return false
	}
}

// persist writes through to the cache and the job-record store. Failures are
// logged, never surfaced: the in-memory entry is authoritative.
func (t *Tracker) persist(ctx context.Context, job *models.Job, created bool) {
	if t.cache != nil {
		if err := t.cache.SetJobState(ctx, job.Connector, job.ID, job.State, terminalResultTTL); err != nil {
			slog.Warn("caching job state failed", "connector", job.Connector, "job_id", job.ID, "error", err)
		}
		if job.TerminalResult != nil {
			if payload, err := json.Marshal(job.TerminalResult); err == nil {
				if err := t.cache.Set(ctx, cache.TerminalResultKey(job.Connector, job.ID), payload, terminalResultTTL); err != nil {
					slog.Warn("caching terminal result failed", "connector", job.Connector, "job_id", job.ID, "error", err)
				}
			}
		}
	}

	if t.store == nil {
		return
	}
	var err error
	if created {
		err = t.store.CreateJobRecord(ctx, job)
	} else {
		opts := []store.JobUpdateOption{}
		if job.TerminalResult != nil {
			opts = append(opts, store.WithTerminalResult(job.TerminalResult))
		}
		err = t.store.UpdateJobRecordState(ctx, job.Connector, job.ID, job.State, opts...)
	}
	if err != nil {
		slog.Warn("persisting job record failed", "connector", job.Connector, "job_id", job.ID, "error", err)
	}
}
