package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaDownloader/api/models"
	"mediaDownloader/api/repository"
)

const writeTimeout = 10 * time.Second

// Store is the part of the job store the scheduler writes to. Writes to a job
// that is already terminal return repository.ErrJobFinished.
type Store interface {
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, progress float64) error
	SetAspectRatio(ctx context.Context, id string, ratio string) error
}

type SnapshotWriter interface {
	Set(ctx context.Context, snapshot *models.StatusSnapshot) error
}

type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event *models.JobEvent) error
}

// Tracker serializes one job's status transitions into the store, the status
// cache and the event feed, in that order. Only the store write is required
// to succeed.
type Tracker struct {
	job    *models.Job
	token  *Token
	store  Store
	cache  SnapshotWriter
	events EventPublisher
	logger *zap.Logger

	status models.JobStatus
	ratio  string
}

func newTracker(job *models.Job, token *Token, store Store, cache SnapshotWriter, events EventPublisher, logger *zap.Logger) *Tracker {
	return &Tracker{
		job:    job,
		token:  token,
		store:  store,
		cache:  cache,
		events: events,
		logger: logger,
		status: job.Status,
	}
}

// Status is the last status the tracker wrote.
func (t *Tracker) Status() models.JobStatus {
	return t.status
}

// Transition writes status and progress. It returns the token's cause without
// writing once the token is done.
func (t *Tracker) Transition(status models.JobStatus, progress float64) error {
	t.token.mu.Lock()
	defer t.token.mu.Unlock()

	if err := t.token.Err(); err != nil {
		return err
	}
	return t.write(status, progress)
}

// Fail marks the job failed with progress 0. Jobs cancelled by their owner
// are left alone.
func (t *Tracker) Fail() error {
	t.token.mu.Lock()
	defer t.token.mu.Unlock()

	if t.token.Cancelled() {
		return ErrJobCancelled
	}
	return t.write(models.StatusFailed, 0)
}

func (t *Tracker) SetAspectRatio(ratio string) error {
	t.token.mu.Lock()
	defer t.token.mu.Unlock()

	if err := t.token.Err(); err != nil {
		return err
	}

	ctx, cancel := t.writeContext()
	defer cancel()

	if err := t.store.SetAspectRatio(ctx, t.job.ID, ratio); err != nil {
		return t.storeError("store aspect ratio", err)
	}
	t.ratio = ratio
	return nil
}

// write must be called with the token's lock held.
func (t *Tracker) write(status models.JobStatus, progress float64) error {
	if !t.status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.status, status)
	}
	progress = clampProgress(progress)

	ctx, cancel := t.writeContext()
	defer cancel()

	if err := t.store.UpdateJobStatus(ctx, t.job.ID, status, progress); err != nil {
		return t.storeError("store status "+string(status), err)
	}
	t.status = status

	now := time.Now().UTC()
	if err := t.cache.Set(ctx, &models.StatusSnapshot{
		JobID:     t.job.ID,
		UserID:    t.job.UserID,
		Status:    status,
		Progress:  progress,
		UpdatedAt: now,
	}); err != nil {
		t.logger.Warn("Failed to cache status", zap.String("status", string(status)), zap.Error(err))
	}

	if err := t.events.PublishJobEvent(ctx, &models.JobEvent{
		JobID:       t.job.ID,
		UserID:      t.job.UserID,
		Status:      status,
		Progress:    progress,
		AspectRatio: t.ratio,
		At:          now,
	}); err != nil {
		t.logger.Warn("Failed to publish job event", zap.String("status", string(status)), zap.Error(err))
	}

	return nil
}

// storeError treats a write the store refused because the job already ended
// as a cancellation observed early: the token is cancelled and nothing else
// is written for the job.
func (t *Tracker) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrJobFinished) {
		t.token.cancel(ErrJobCancelled)
		return ErrJobCancelled
	}
	return fmt.Errorf("%s: %w", op, err)
}

// writeContext outlives the token so a unit abandoned at shutdown can still
// record its failure.
func (t *Tracker) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(t.token.Context()), writeTimeout)
}

func clampProgress(p float64) float64 {
	switch {
	case p == models.ProgressIndeterminate:
		return p
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
