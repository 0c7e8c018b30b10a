package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediaDownloader/api/models"
	"mediaDownloader/worker/config"
	"mediaDownloader/worker/fetcher"
	"mediaDownloader/worker/pool"
	"mediaDownloader/worker/probe"
)

// shutdownGrace bounds how long Shutdown waits for abandoned units to record
// their failure.
const shutdownGrace = 5 * time.Second

type Deps struct {
	Store   Store
	Cache   SnapshotWriter
	Events  EventPublisher
	Fetcher fetcher.Fetcher
	Prober  probe.Prober
}

// Scheduler runs one execution unit per job and owns the registry of active units.
type Scheduler struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger

	registry *Registry
	group    *pool.Group
	base     context.Context
	stop     context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Scheduler {
	base, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		registry: NewRegistry(),
		group:    pool.NewGroup(cfg.MaxActiveJobs),
		base:     base,
		stop:     stop,
	}
}

func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Spawn registers job and starts its execution unit. It does not wait for the
// unit to make progress.
func (s *Scheduler) Spawn(job *models.Job) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	h := &Handle{
		JobID:     job.ID,
		UserID:    job.UserID,
		StartedAt: time.Now(),
		token:     NewToken(s.base),
		done:      make(chan struct{}),
	}
	if err := s.registry.add(h); err != nil {
		h.token.Cancel(err)
		return nil, err
	}

	s.group.Go(func() { s.run(h, job) })
	return h, nil
}

// Cancel signals the unit running id, if any, and returns once the unit has no
// status write in flight. The store must already hold the cancelled status;
// the unit only stops writing.
func (s *Scheduler) Cancel(id string) bool {
	h, ok := s.registry.Get(id)
	if !ok {
		return false
	}
	h.token.Cancel(ErrJobCancelled)
	return true
}

func (s *Scheduler) Active(id string) bool {
	_, ok := s.registry.Get(id)
	return ok
}

func (s *Scheduler) ActiveIDs() []string {
	return s.registry.IDs()
}

// Shutdown stops accepting jobs and joins running units until ctx is done.
// Units still running then are cancelled with ErrShutdown, given a short grace
// period to record their failure, and ctx's error is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.group.Wait(ctx)
	if err == nil {
		s.stop()
		return nil
	}

	abandoned := s.registry.snapshot()
	s.logger.Warn("Abandoning running jobs", zap.Int("count", len(abandoned)))
	for _, h := range abandoned {
		h.token.Cancel(ErrShutdown)
	}
	s.stop()

	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if werr := s.group.Wait(graceCtx); werr != nil {
		s.logger.Error("Jobs did not stop within grace period", zap.Int("count", s.registry.Len()))
	}
	return err
}
