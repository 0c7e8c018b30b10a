package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediaDownloader/api/models"
	"mediaDownloader/worker/fetcher"
	"mediaDownloader/worker/probe"
	"mediaDownloader/worker/relocate"
)

func (s *Scheduler) tempDir(jobID string) string {
	return filepath.Join(s.cfg.DownloadDir, jobID)
}

// run is the execution unit body. Cleanup runs exactly once on every path,
// including panics.
func (s *Scheduler) run(h *Handle, job *models.Job) {
	logger := s.logger.With(zap.String("job_id", job.ID))
	tracker := newTracker(job, h.token, s.deps.Store, s.deps.Cache, s.deps.Events, logger)
	tempDir := s.tempDir(job.ID)

	defer s.cleanup(h, tempDir, logger)
	defer func() {
		if r := recover(); r != nil {
			s.finish(tracker, &PhaseError{Phase: PhaseUnit, Err: fmt.Errorf("panic: %v", r)}, logger)
		}
	}()

	release, err := s.group.Acquire(h.token.Context())
	if err != nil {
		s.finish(tracker, &PhaseError{Phase: PhaseQueue, Err: err}, logger)
		return
	}
	defer release()

	s.finish(tracker, s.pipeline(h.token, tracker, job, tempDir, logger), logger)
}

func (s *Scheduler) pipeline(token *Token, tracker *Tracker, job *models.Job, tempDir string, logger *zap.Logger) error {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return &PhaseError{Phase: PhasePrepare, Err: err}
	}

	if err := tracker.Transition(models.StatusDownloading, 0); err != nil {
		return err
	}

	artifact, err := s.fetch(token, tracker, job, tempDir)
	if err != nil {
		return err
	}
	logger.Info("Fetch finished",
		zap.String("file", filepath.Base(artifact.Path)),
		zap.Int64("size", artifact.Size),
	)

	// Fetch progress need not reach 100 before the fetcher returns.
	if err := tracker.Transition(models.StatusProcessing, 100); err != nil {
		return err
	}

	ratio, err := probe.Ratio(token.Context(), s.deps.Prober, artifact.Path)
	if err != nil {
		if cause := token.Err(); cause != nil {
			return cause
		}
		logger.Warn("Could not determine aspect ratio",
			zap.String("phase", string(PhaseProbe)),
			zap.Error(err),
		)
	}
	if err := tracker.SetAspectRatio(ratio); err != nil {
		return err
	}

	dest, err := relocate.Resolve(s.cfg.TargetDir, job.TargetPath, filepath.Base(artifact.Path), s.cfg.IsMediaFile)
	if err != nil {
		return &PhaseError{Phase: PhaseRelocate, Err: err}
	}
	mover := relocate.New(logger)
	if err := mover.Prepare(dest); err != nil {
		return &PhaseError{Phase: PhaseRelocate, Err: err}
	}

	if err := tracker.Transition(models.StatusMoving, 100); err != nil {
		return err
	}

	ctx, cancel := withTimeout(token.Context(), s.cfg.CopyTimeout)
	defer cancel()
	if err := mover.Move(ctx, artifact.Path, dest); err != nil {
		if cause := token.Err(); cause != nil {
			err = cause
		}
		return &PhaseError{Phase: PhaseRelocate, Err: err}
	}
	logger.Info("Artifact relocated", zap.String("dest", dest))

	if err := tracker.Transition(models.StatusCompleted, 100); err != nil {
		if errors.Is(err, ErrJobCancelled) {
			// Cancelled while the copy was finishing: the job does not deliver.
			if rerr := os.Remove(dest); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				logger.Error("Failed to remove delivered file", zap.String("dest", dest), zap.Error(rerr))
			}
		}
		return err
	}
	return nil
}

func (s *Scheduler) fetch(token *Token, tracker *Tracker, job *models.Job, tempDir string) (*fetcher.Artifact, error) {
	ctx, cancel := withTimeout(token.Context(), s.cfg.FetchTimeout)
	defer cancel()

	req := fetcher.Request{
		URL:         job.URL,
		OutputDir:   tempDir,
		MergeFormat: s.cfg.MergeFormat,
	}
	artifact, err := s.deps.Fetcher.Fetch(ctx, req, func(p fetcher.Progress) error {
		// A finished marker is per stream; processing is written once Fetch returns.
		if p.Phase == fetcher.PhaseFinished {
			return token.Err()
		}
		return tracker.Transition(models.StatusDownloading, p.Percent())
	})
	if err != nil {
		if cause := token.Err(); cause != nil {
			err = cause
		}
		return nil, &PhaseError{Phase: PhaseFetch, Err: err}
	}
	return artifact, nil
}

// finish maps the pipeline result onto the job's final state.
func (s *Scheduler) finish(tracker *Tracker, err error, logger *zap.Logger) {
	switch {
	case err == nil:
		logger.Info("Job completed")
		return
	case errors.Is(err, ErrJobCancelled):
		logger.Info("Job cancelled", zap.String("status", string(tracker.Status())))
		return
	}

	logger.Error("Job failed",
		zap.String("phase", string(phaseOf(err))),
		zap.String("status", string(tracker.Status())),
		zap.Error(err),
	)
	if ferr := tracker.Fail(); ferr != nil && !errors.Is(ferr, ErrJobCancelled) {
		logger.Error("Failed to record job failure", zap.Error(ferr))
	}
}

func (s *Scheduler) cleanup(h *Handle, tempDir string, logger *zap.Logger) {
	if err := os.RemoveAll(tempDir); err != nil {
		logger.Error("Failed to remove temp dir", zap.String("dir", tempDir), zap.Error(err))
	}
	s.registry.remove(h.JobID)
	h.token.Cancel(nil)
	close(h.done)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
