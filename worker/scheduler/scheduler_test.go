package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"mediaDownloader/api/models"
	"mediaDownloader/api/repository"
	"mediaDownloader/worker/config"
	"mediaDownloader/worker/fetcher"
	"mediaDownloader/worker/probe"
)

type write struct {
	status   models.JobStatus
	progress float64
}

// memStore mimics the repository's terminal-status guard and records every
// write it is asked to make, accepted or not.
type memStore struct {
	mu        sync.Mutex
	status    map[string]models.JobStatus
	progress  map[string]float64
	ratio     map[string]string
	attempted map[string][]write
	applied   map[string]int

	// beforeUpdate, when set, runs ahead of every status write.
	beforeUpdate func(id string, status models.JobStatus)
}

func newMemStore() *memStore {
	return &memStore{
		status:    make(map[string]models.JobStatus),
		progress:  make(map[string]float64),
		ratio:     make(map[string]string),
		attempted: make(map[string][]write),
		applied:   make(map[string]int),
	}
}

func (m *memStore) add(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[job.ID] = job.Status
}

func (m *memStore) UpdateJobStatus(_ context.Context, id string, status models.JobStatus, progress float64) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(id, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempted[id] = append(m.attempted[id], write{status, progress})
	cur, ok := m.status[id]
	if !ok {
		return nil
	}
	if cur.IsTerminal() {
		return repository.ErrJobFinished
	}
	m.status[id] = status
	m.progress[id] = progress
	m.applied[id]++
	return nil
}

func (m *memStore) SetAspectRatio(_ context.Context, id string, ratio string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status[id].IsTerminal() {
		return repository.ErrJobFinished
	}
	m.ratio[id] = ratio
	return nil
}

func (m *memStore) cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status[id].IsTerminal() {
		return false
	}
	m.status[id] = models.StatusCancelled
	m.attempted[id] = append(m.attempted[id], write{models.StatusCancelled, m.progress[id]})
	return true
}

func (m *memStore) get(id string) (models.JobStatus, float64, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id], m.progress[id], m.ratio[id]
}

func (m *memStore) appliedCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[id]
}

func (m *memStore) writes(id string) []write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]write(nil), m.attempted[id]...)
}

type memSink struct {
	mu        sync.Mutex
	snapshots []*models.StatusSnapshot
	events    []*models.JobEvent
}

func (s *memSink) Set(_ context.Context, snap *models.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *memSink) PublishJobEvent(_ context.Context, e *models.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) counts() (snapshots, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.events)
}

func (s *memSink) statuses() []models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JobStatus, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = snap.Status
	}
	return out
}

type fakeFetcher struct {
	fn func(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error) {
	return f.fn(ctx, req, onProgress)
}

type fakeProber struct {
	dims probe.Dimensions
	err  error
}

func (p fakeProber) Probe(context.Context, string) (probe.Dimensions, error) {
	return p.dims, p.err
}

// writingFetcher reports two progress steps and leaves a file in the output dir.
func writingFetcher(name string, data []byte) *fakeFetcher {
	return &fakeFetcher{fn: func(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error) {
		total := int64(len(data))
		if err := onProgress(fetcher.Progress{Downloaded: total / 2, Total: total}); err != nil {
			return nil, err
		}
		path := filepath.Join(req.OutputDir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		if err := onProgress(fetcher.Progress{Downloaded: total, Total: total, Phase: fetcher.PhaseFinished}); err != nil {
			return nil, err
		}
		return &fetcher.Artifact{Path: path, Size: total}, nil
	}}
}

// blockingFetcher reports progress until its context ends or a report is refused.
func blockingFetcher(started chan<- struct{}) *fakeFetcher {
	var once sync.Once
	return &fakeFetcher{fn: func(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error) {
		for i := int64(0); ; i++ {
			if err := onProgress(fetcher.Progress{Downloaded: i, Total: 1000}); err != nil {
				return nil, err
			}
			once.Do(func() { close(started) })
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}}
}

type harness struct {
	t     *testing.T
	cfg   *config.Config
	store *memStore
	sink  *memSink
	sched *Scheduler
}

func newHarness(t *testing.T, f fetcher.Fetcher, p probe.Prober) *harness {
	t.Helper()
	cfg := &config.Config{
		DownloadDir:     t.TempDir(),
		TargetDir:       t.TempDir(),
		MergeFormat:     "mp4",
		MediaExtensions: []string{".mp4"},
	}
	return newHarnessWithConfig(t, cfg, f, p)
}

func newHarnessWithConfig(t *testing.T, cfg *config.Config, f fetcher.Fetcher, p probe.Prober) *harness {
	store := newMemStore()
	sink := &memSink{}
	sched := New(cfg, Deps{
		Store:   store,
		Cache:   sink,
		Events:  sink,
		Fetcher: f,
		Prober:  p,
	}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Shutdown(ctx)
	})
	return &harness{t: t, cfg: cfg, store: store, sink: sink, sched: sched}
}

func (h *harness) spawn(targetPath string) (*models.Job, *Handle) {
	h.t.Helper()
	job := &models.Job{
		ID:         uuid.New().String(),
		UserID:     1,
		URL:        "https://example.com/watch?v=1",
		TargetPath: targetPath,
		Status:     models.StatusQueued,
	}
	h.store.add(job)
	handle, err := h.sched.Spawn(job)
	if err != nil {
		h.t.Fatalf("Spawn failed: %v", err)
	}
	return job, handle
}

func waitDone(t *testing.T, handle *Handle) {
	t.Helper()
	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Unit for %s did not finish", handle.JobID)
	}
}

// assertCleanedUp checks the guarantees every exit path must give.
func (h *harness) assertCleanedUp(job *models.Job) {
	h.t.Helper()
	if _, err := os.Stat(filepath.Join(h.cfg.DownloadDir, job.ID)); !os.IsNotExist(err) {
		h.t.Errorf("Expected temp dir to be removed, stat err = %v", err)
	}
	if h.sched.Active(job.ID) {
		h.t.Error("Expected job to be absent from the registry")
	}
}

// assertValidPath checks that the attempted writes walk the state machine.
func (h *harness) assertValidPath(job *models.Job) {
	h.t.Helper()
	prev := models.StatusQueued
	for i, w := range h.store.writes(job.ID) {
		if !prev.CanTransition(w.status) {
			h.t.Errorf("Write %d: invalid transition %s -> %s", i, prev, w.status)
		}
		prev = w.status
	}
}

func TestScheduler_HappyPath(t *testing.T) {
	h := newHarness(t, writingFetcher("Clip.mp4", []byte("video-bytes!")), fakeProber{dims: probe.Dimensions{Width: 1920, Height: 1080}})

	job, handle := h.spawn("shows/")
	waitDone(t, handle)

	status, progress, ratio := h.store.get(job.ID)
	if status != models.StatusCompleted || progress != 100 {
		t.Errorf("Expected completed/100, got %s/%v", status, progress)
	}
	if ratio != "16:9" {
		t.Errorf("Expected aspect ratio 16:9, got %s", ratio)
	}

	data, err := os.ReadFile(filepath.Join(h.cfg.TargetDir, "shows", "Clip.mp4"))
	if err != nil {
		t.Fatalf("Expected relocated file: %v", err)
	}
	if string(data) != "video-bytes!" {
		t.Errorf("Unexpected relocated content %q", data)
	}

	want := []models.JobStatus{
		models.StatusDownloading,
		models.StatusDownloading,
		models.StatusProcessing,
		models.StatusMoving,
		models.StatusCompleted,
	}
	writes := h.store.writes(job.ID)
	if len(writes) != len(want) {
		t.Fatalf("Expected %d writes, got %d: %+v", len(want), len(writes), writes)
	}
	for i, w := range writes {
		if w.status != want[i] {
			t.Errorf("Write %d: expected %s, got %s", i, want[i], w.status)
		}
	}
	if writes[0].progress != 0 || writes[1].progress != 50 || writes[2].progress != 100 {
		t.Errorf("Unexpected progress values: %+v", writes)
	}

	h.sink.mu.Lock()
	events := len(h.sink.events)
	last := h.sink.events[events-1]
	h.sink.mu.Unlock()
	if events != len(want) {
		t.Errorf("Expected %d events, got %d", len(want), events)
	}
	if last.Status != models.StatusCompleted || last.AspectRatio != "16:9" {
		t.Errorf("Unexpected final event %+v", last)
	}

	h.assertCleanedUp(job)
	h.assertValidPath(job)
}

func TestScheduler_LiteralTargetFilename(t *testing.T) {
	h := newHarness(t, writingFetcher("Clip.mp4", []byte("x")), fakeProber{dims: probe.Dimensions{Width: 640, Height: 480}})

	job, handle := h.spawn("archive/renamed.mp4")
	waitDone(t, handle)

	if _, err := os.Stat(filepath.Join(h.cfg.TargetDir, "archive", "renamed.mp4")); err != nil {
		t.Errorf("Expected file at literal target: %v", err)
	}
	if _, _, ratio := h.store.get(job.ID); ratio != "4:3" {
		t.Errorf("Expected 4:3, got %s", ratio)
	}
}

func TestScheduler_ProbeFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, writingFetcher("Clip.mp4", []byte("x")), fakeProber{err: errors.New("no video stream")})

	job, handle := h.spawn("shows")
	waitDone(t, handle)

	status, _, ratio := h.store.get(job.ID)
	if status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", status)
	}
	if ratio != models.AspectRatioUnknown {
		t.Errorf("Expected Unknown aspect ratio, got %s", ratio)
	}
	h.assertCleanedUp(job)
}

func TestScheduler_FetchFailure(t *testing.T) {
	f := &fakeFetcher{fn: func(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error) {
		os.WriteFile(filepath.Join(req.OutputDir, "partial.mp4.part"), []byte("x"), 0644)
		return nil, errors.New("HTTP Error 403: Forbidden")
	}}
	h := newHarness(t, f, fakeProber{})

	job, handle := h.spawn("shows")
	waitDone(t, handle)

	status, progress, _ := h.store.get(job.ID)
	if status != models.StatusFailed || progress != 0 {
		t.Errorf("Expected failed/0, got %s/%v", status, progress)
	}
	h.assertCleanedUp(job)
	h.assertValidPath(job)
}

func TestScheduler_RelocationFailure(t *testing.T) {
	h := newHarness(t, writingFetcher("Clip.mp4", []byte("x")), fakeProber{})

	job, handle := h.spawn("../../escape")
	waitDone(t, handle)

	if status, _, _ := h.store.get(job.ID); status != models.StatusFailed {
		t.Errorf("Expected failed, got %s", status)
	}
	h.assertCleanedUp(job)
	h.assertValidPath(job)
}

func TestScheduler_PanicInUnit(t *testing.T) {
	f := &fakeFetcher{fn: func(context.Context, fetcher.Request, fetcher.ProgressFunc) (*fetcher.Artifact, error) {
		panic("fetcher exploded")
	}}
	h := newHarness(t, f, fakeProber{})

	job, handle := h.spawn("shows")
	waitDone(t, handle)

	if status, _, _ := h.store.get(job.ID); status != models.StatusFailed {
		t.Errorf("Expected failed, got %s", status)
	}
	h.assertCleanedUp(job)
}

func TestScheduler_IndeterminateProgress(t *testing.T) {
	f := &fakeFetcher{fn: func(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error) {
		if err := onProgress(fetcher.Progress{Downloaded: 1234}); err != nil {
			return nil, err
		}
		return nil, errors.New("stop here")
	}}
	h := newHarness(t, f, fakeProber{})

	job, handle := h.spawn("shows")
	waitDone(t, handle)

	writes := h.store.writes(job.ID)
	if len(writes) < 2 || writes[1].status != models.StatusDownloading || writes[1].progress != models.ProgressIndeterminate {
		t.Errorf("Expected indeterminate downloading write, got %+v", writes)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, blockingFetcher(started), fakeProber{})

	job, handle := h.spawn("shows")
	<-started

	if !h.store.cancel(job.ID) {
		t.Fatal("Expected store cancel to succeed")
	}
	if !h.sched.Cancel(job.ID) {
		t.Fatal("Expected an active unit to be signalled")
	}
	snapshots, events := h.sink.counts()

	// The service publishes the cancelled snapshot once Cancel returns.
	h.sink.Set(context.Background(), &models.StatusSnapshot{JobID: job.ID, Status: models.StatusCancelled})
	waitDone(t, handle)

	if status, _, _ := h.store.get(job.ID); status != models.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", status)
	}

	gotSnapshots, gotEvents := h.sink.counts()
	if gotSnapshots != snapshots+1 || gotEvents != events {
		t.Errorf("Expected no cache or event writes after Cancel returned, got %d snapshots (want %d) and %d events (want %d)",
			gotSnapshots, snapshots+1, gotEvents, events)
	}
	if statuses := h.sink.statuses(); statuses[len(statuses)-1] != models.StatusCancelled {
		t.Errorf("Expected cancelled to be the last cached status, got %v", statuses)
	}
	if applied := h.store.appliedCount(job.ID); applied != snapshots {
		t.Errorf("Expected one snapshot per accepted store write, got %d snapshots for %d writes", snapshots, applied)
	}
	h.assertCleanedUp(job)

	if h.sched.Cancel(job.ID) {
		t.Error("Expected Cancel of a finished unit to report false")
	}
}

func TestScheduler_CancelledDuringFetchNeverCompletes(t *testing.T) {
	f := &fakeFetcher{}
	h := newHarness(t, f, fakeProber{dims: probe.Dimensions{Width: 1920, Height: 1080}})

	// Cancellation lands in the store after the last progress report, while
	// the token is still live.
	f.fn = func(ctx context.Context, req fetcher.Request, onProgress fetcher.ProgressFunc) (*fetcher.Artifact, error) {
		if err := onProgress(fetcher.Progress{Downloaded: 6, Total: 12}); err != nil {
			return nil, err
		}
		path := filepath.Join(req.OutputDir, "Clip.mp4")
		if err := os.WriteFile(path, []byte("video-bytes!"), 0644); err != nil {
			return nil, err
		}
		h.store.cancel(filepath.Base(req.OutputDir))
		return &fetcher.Artifact{Path: path, Size: 12}, nil
	}

	job, handle := h.spawn("shows/")
	waitDone(t, handle)

	if status, _, ratio := h.store.get(job.ID); status != models.StatusCancelled || ratio != "" {
		t.Errorf("Expected cancelled with no aspect ratio, got %s %q", status, ratio)
	}
	for _, status := range h.sink.statuses() {
		if status != models.StatusDownloading {
			t.Errorf("Expected only downloading snapshots, got %s", status)
		}
	}
	h.sink.mu.Lock()
	for _, e := range h.sink.events {
		if e.Status != models.StatusDownloading {
			t.Errorf("Expected only downloading events, got %s", e.Status)
		}
	}
	h.sink.mu.Unlock()

	if _, err := os.Stat(filepath.Join(h.cfg.TargetDir, "shows", "Clip.mp4")); !os.IsNotExist(err) {
		t.Errorf("Expected cancelled job not to deliver its file, stat err = %v", err)
	}
	h.assertCleanedUp(job)
}

func TestScheduler_CancelledWhileMovingRemovesDelivery(t *testing.T) {
	h := newHarness(t, writingFetcher("Clip.mp4", []byte("video-bytes!")), fakeProber{})
	h.store.beforeUpdate = func(id string, status models.JobStatus) {
		if status == models.StatusCompleted {
			h.store.cancel(id)
		}
	}

	job, handle := h.spawn("shows/")
	waitDone(t, handle)

	if status, _, _ := h.store.get(job.ID); status != models.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", status)
	}
	if statuses := h.sink.statuses(); statuses[len(statuses)-1] != models.StatusMoving {
		t.Errorf("Expected moving to be the last cached status, got %v", statuses)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.TargetDir, "shows", "Clip.mp4")); !os.IsNotExist(err) {
		t.Errorf("Expected delivered file to be removed, stat err = %v", err)
	}
	h.assertCleanedUp(job)
}

func TestScheduler_CancelWhileWaitingForSlot(t *testing.T) {
	cfg := &config.Config{
		DownloadDir:     t.TempDir(),
		TargetDir:       t.TempDir(),
		MergeFormat:     "mp4",
		MediaExtensions: []string{".mp4"},
		MaxActiveJobs:   1,
	}
	started := make(chan struct{})
	h := newHarnessWithConfig(t, cfg, blockingFetcher(started), fakeProber{})

	first, firstHandle := h.spawn("shows")
	<-started
	second, secondHandle := h.spawn("shows")

	h.store.cancel(second.ID)
	h.sched.Cancel(second.ID)
	waitDone(t, secondHandle)

	if writes := h.store.writes(second.ID); len(writes) != 1 {
		t.Errorf("Expected only the cancellation write, got %+v", writes)
	}
	h.assertCleanedUp(second)

	h.store.cancel(first.ID)
	h.sched.Cancel(first.ID)
	waitDone(t, firstHandle)
}

func TestScheduler_ShutdownAbandonsRunningUnits(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, blockingFetcher(started), fakeProber{})

	job, handle := h.spawn("shows")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := h.sched.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	waitDone(t, handle)

	if status, progress, _ := h.store.get(job.ID); status != models.StatusFailed || progress != 0 {
		t.Errorf("Expected abandoned job to be failed/0, got %s/%v", status, progress)
	}
	h.assertCleanedUp(job)

	if _, err := h.sched.Spawn(&models.Job{ID: "late", Status: models.StatusQueued}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after shutdown, got %v", err)
	}
}

func TestScheduler_ShutdownJoinsFinishedUnits(t *testing.T) {
	h := newHarness(t, writingFetcher("Clip.mp4", []byte("x")), fakeProber{})

	job, _ := h.spawn("shows")
	if err := h.sched.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if status, _, _ := h.store.get(job.ID); status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", status)
	}
	if n := h.sched.Registry().Len(); n != 0 {
		t.Errorf("Expected empty registry, got %d", n)
	}
}

func TestScheduler_SpawnDuplicate(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, blockingFetcher(started), fakeProber{})

	job, handle := h.spawn("shows")
	<-started

	if _, err := h.sched.Spawn(job); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("Expected ErrAlreadyActive, got %v", err)
	}
	if ids := h.sched.ActiveIDs(); len(ids) != 1 || ids[0] != job.ID {
		t.Errorf("Expected only %s active, got %v", job.ID, ids)
	}

	h.store.cancel(job.ID)
	h.sched.Cancel(job.ID)
	waitDone(t, handle)
}
