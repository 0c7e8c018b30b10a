package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaDownloader/api/auth"
	"mediaDownloader/api/cache"
	"mediaDownloader/api/dto"
	"mediaDownloader/api/kafka"
	"mediaDownloader/api/models"
	"mediaDownloader/api/repository"
	"mediaDownloader/api/validation"
	"mediaDownloader/worker/scheduler"
)

// Scheduler is the part of the job scheduler the HTTP side uses.
type Scheduler interface {
	Spawn(job *models.Job) (*scheduler.Handle, error)
	Cancel(id string) bool
	Active(id string) bool
}

type DownloadService struct {
	repo     repository.JobRepository
	users    repository.UserRepository
	cache    cache.SnapshotCache
	producer kafka.Producer
	sched    Scheduler
	maxBatch int
	logger   *zap.Logger
}

func NewDownloadService(repo repository.JobRepository, users repository.UserRepository, cache cache.SnapshotCache, producer kafka.Producer, sched Scheduler, maxBatch int, logger *zap.Logger) *DownloadService {
	return &DownloadService{
		repo:     repo,
		users:    users,
		cache:    cache,
		producer: producer,
		sched:    sched,
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// Submit records one queued job per (url, target path) pair and starts an
// execution unit for each. It returns without waiting for any unit.
func (s *DownloadService) Submit(ctx context.Context, userID int64, req *dto.SubmitDownloadsRequest) ([]string, error) {
	if err := validation.ValidateBatch(req.URLs, req.TargetPaths, s.maxBatch); err != nil {
		return nil, err
	}

	jobs := make([]*models.Job, len(req.URLs))
	ids := make([]string, len(req.URLs))
	for i := range req.URLs {
		jobs[i] = &models.Job{
			ID:         uuid.New().String(),
			UserID:     userID,
			URL:        strings.TrimSpace(req.URLs[i]),
			TargetPath: strings.TrimSpace(req.TargetPaths[i]),
			Status:     models.StatusQueued,
		}
		ids[i] = jobs[i].ID
	}

	if err := s.repo.CreateJobs(ctx, jobs); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		s.publish(ctx, job)

		if _, err := s.sched.Spawn(job); err != nil {
			s.logger.Error("Failed to start download",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			if uerr := s.repo.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, models.StatusFailed, 0); uerr != nil {
				s.logger.Error("Failed to mark download failed", zap.String("job_id", job.ID), zap.Error(uerr))
			}
			continue
		}

		s.logger.Info("Download queued",
			zap.String("job_id", job.ID),
			zap.Int64("user_id", userID),
			zap.String("url", job.URL),
			zap.String("target_path", job.TargetPath),
		)
	}

	return ids, nil
}

func (s *DownloadService) List(ctx context.Context, userID int64) ([]*models.Job, error) {
	return s.repo.ListJobs(ctx, &userID)
}

func (s *DownloadService) ListAll(ctx context.Context) ([]*models.Job, error) {
	return s.repo.ListJobs(ctx, nil)
}

// Get returns a job owned by the caller; admins may read any job.
func (s *DownloadService) Get(ctx context.Context, p *auth.Principal, id string) (*models.Job, error) {
	owner, err := s.ownerFilter(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, id, owner)
}

func (s *DownloadService) get(ctx context.Context, id string, owner *int64) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, id, owner)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Status serves the cached snapshot when there is one and falls back to the store.
func (s *DownloadService) Status(ctx context.Context, p *auth.Principal, id string) (*dto.StatusResponse, error) {
	owner, err := s.ownerFilter(ctx, p)
	if err != nil {
		return nil, err
	}

	snap, err := s.cache.Get(ctx, id)
	if err == nil && (owner == nil || snap.UserID == *owner) {
		return s.statusResponse(snap), nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Status cache read failed", zap.String("job_id", id), zap.Error(err))
	}

	job, err := s.get(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	snap = snapshotOf(job)
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("Failed to cache status", zap.String("job_id", id), zap.Error(err))
	}
	return s.statusResponse(snap), nil
}

func (s *DownloadService) statusResponse(snap *models.StatusSnapshot) *dto.StatusResponse {
	return &dto.StatusResponse{
		ID:        snap.JobID,
		Status:    snap.Status,
		Progress:  snap.Progress,
		Active:    s.sched.Active(snap.JobID),
		UpdatedAt: snap.UpdatedAt,
	}
}

// Cancel marks the caller's job cancelled and signals its running unit. Only
// the owner may cancel a job.
func (s *DownloadService) Cancel(ctx context.Context, userID int64, id string) (*dto.CancelResponse, error) {
	job, err := s.repo.CancelJob(ctx, id, &userID)
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		return nil, ErrNotFound
	case errors.Is(err, repository.ErrJobFinished):
		return nil, ErrConflict
	case err != nil:
		return nil, err
	}

	// Cancel returns once none of the unit's writes are in flight, so the
	// snapshot published below is the job's last.
	interrupted := s.sched.Cancel(id)
	s.publish(ctx, job)

	s.logger.Info("Download cancelled",
		zap.String("job_id", id),
		zap.Int64("user_id", userID),
		zap.Bool("interrupted", interrupted),
	)

	return &dto.CancelResponse{Message: "Download cancelled", Interrupted: interrupted}, nil
}

// publish pushes job's current state to the status cache and the event feed.
// Both are best effort.
func (s *DownloadService) publish(ctx context.Context, job *models.Job) {
	snap := snapshotOf(job)
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("Failed to cache status", zap.String("job_id", job.ID), zap.Error(err))
	}

	event := &models.JobEvent{
		JobID:    job.ID,
		UserID:   job.UserID,
		Status:   job.Status,
		Progress: job.Progress,
		At:       snap.UpdatedAt,
	}
	if job.AspectRatio != nil {
		event.AspectRatio = *job.AspectRatio
	}
	if err := s.producer.PublishJobEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish job event", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func snapshotOf(job *models.Job) *models.StatusSnapshot {
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &models.StatusSnapshot{
		JobID:     job.ID,
		UserID:    job.UserID,
		Status:    job.Status,
		Progress:  job.Progress,
		UpdatedAt: updated,
	}
}

// ownerFilter limits reads to the caller's own jobs unless the store still
// records the caller as an admin. The token's admin claim alone is not enough.
func (s *DownloadService) ownerFilter(ctx context.Context, p *auth.Principal) (*int64, error) {
	if p.IsAdmin {
		user, err := s.users.GetUserByID(ctx, p.UserID)
		switch {
		case err == nil && user.IsAdmin:
			return nil, nil
		case err != nil && !errors.Is(err, repository.ErrUserNotFound):
			return nil, err
		}
	}
	id := p.UserID
	return &id, nil
}
