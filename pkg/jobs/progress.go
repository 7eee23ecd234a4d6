package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

var (
	// ErrUnknownJob is returned when updating a key the store has never seen.
	ErrUnknownJob = errors.New("unknown job key")
	// ErrIllegalTransition is returned when an update would move a job backwards.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// ProgressMirror persists snapshots outside the process so other replicas can answer polls.
type ProgressMirror interface {
	Save(ctx context.Context, progress models.JobProgress) error
	Load(ctx context.Context, jobKey string) (*models.JobProgress, error)
}

// ProgressStoreConfig configures a ProgressStore.
type ProgressStoreConfig struct {
	Retention time.Duration
	Mirror    ProgressMirror
	Logger    *zap.Logger
	Clock     func() time.Time
}

type progressEntry struct {
	snapshot   models.JobProgress
	finishedAt time.Time
	subs       []chan models.JobProgress
}

// ProgressStore is the concurrency-safe job_key -> progress map polled by clients. Status only
// moves pending -> running -> completed|failed and progress never decreases.
type ProgressStore struct {
	mu      sync.RWMutex
	entries map[string]*progressEntry

	retention time.Duration
	mirror    ProgressMirror
	logger    *zap.Logger
	now       func() time.Time

	// latest unsaved snapshot per key; the mirror writer drains it off the update path
	pendingMu  sync.Mutex
	pending    map[string]models.JobProgress
	wake       chan struct{}
	closing    chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}
}

// NewProgressStore constructs an empty store.
func NewProgressStore(cfg ProgressStoreConfig) *ProgressStore {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &ProgressStore{
		entries:   make(map[string]*progressEntry),
		retention: cfg.Retention,
		mirror:    cfg.Mirror,
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}
	if s.mirror != nil {
		s.pending = make(map[string]models.JobProgress)
		s.wake = make(chan struct{}, 1)
		s.closing = make(chan struct{})
		s.writerDone = make(chan struct{})
		go s.runMirror()
	}
	return s
}

// Close flushes snapshots still waiting for the mirror and stops the writer. Later updates are
// kept in memory only.
func (s *ProgressStore) Close() {
	if s.mirror == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.writerDone
}

// Create registers a pending job.
func (s *ProgressStore) Create(jobKey, message string) models.JobProgress {
	s.mu.Lock()
	snap := models.JobProgress{
		JobKey:    jobKey,
		Status:    models.JobStatusPending,
		Message:   message,
		UpdatedAt: s.now().UTC(),
	}
	s.entries[jobKey] = &progressEntry{snapshot: snap}
	s.mu.Unlock()

	s.mirrorSave(snap)
	return snap
}

// Start marks the job running.
func (s *ProgressStore) Start(jobKey, message string) error {
	return s.update(jobKey, func(p *models.JobProgress) error {
		if p.Status != models.JobStatusPending && p.Status != models.JobStatusRunning {
			return ErrIllegalTransition
		}
		p.Status = models.JobStatusRunning
		p.Message = message
		return nil
	})
}

// Report records intermediate progress. Values are clamped into [previous, 100].
func (s *ProgressStore) Report(jobKey string, progress float64, message string) error {
	return s.update(jobKey, func(p *models.JobProgress) error {
		if p.Status.Terminal() {
			return ErrIllegalTransition
		}
		p.Status = models.JobStatusRunning
		p.Progress = clampProgress(p.Progress, progress)
		p.Message = message
		return nil
	})
}

// Complete finishes the job successfully.
func (s *ProgressStore) Complete(jobKey, scheduleID, message string) error {
	return s.update(jobKey, func(p *models.JobProgress) error {
		if p.Status.Terminal() {
			return ErrIllegalTransition
		}
		p.Status = models.JobStatusCompleted
		p.Progress = 100
		p.Message = message
		if scheduleID != "" {
			id := scheduleID
			p.ScheduleID = &id
		}
		return nil
	})
}

// Fail finishes the job unsuccessfully. schedule_id stays null.
func (s *ProgressStore) Fail(jobKey, message string) error {
	return s.update(jobKey, func(p *models.JobProgress) error {
		if p.Status.Terminal() {
			return ErrIllegalTransition
		}
		p.Status = models.JobStatusFailed
		p.Message = message
		p.ScheduleID = nil
		return nil
	})
}

func (s *ProgressStore) update(jobKey string, apply func(*models.JobProgress) error) error {
	s.mu.Lock()
	entry, ok := s.entries[jobKey]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownJob
	}
	next := entry.snapshot
	if err := apply(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.UpdatedAt = s.now().UTC()
	entry.snapshot = next
	if next.Status.Terminal() {
		entry.finishedAt = s.now()
	}
	for _, ch := range entry.subs {
		publish(ch, next)
	}
	if next.Status.Terminal() {
		for _, ch := range entry.subs {
			close(ch)
		}
		entry.subs = nil
	}
	s.mu.Unlock()

	s.mirrorSave(next)
	return nil
}

// publish keeps only the latest snapshot in a subscriber's buffer so the writer never blocks.
func publish(ch chan models.JobProgress, snap models.JobProgress) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Get returns the latest snapshot. Unknown keys fall back to the mirror and finally to a
// not_found snapshot.
func (s *ProgressStore) Get(ctx context.Context, jobKey string) models.JobProgress {
	s.mu.RLock()
	entry, ok := s.entries[jobKey]
	var snap models.JobProgress
	if ok {
		snap = entry.snapshot
	}
	s.mu.RUnlock()
	if ok {
		return snap
	}

	if s.mirror != nil {
		mirrored, err := s.mirror.Load(ctx, jobKey)
		if err != nil {
			s.logger.Sugar().Warnw("progress mirror load failed", "job_key", jobKey, "error", err)
		} else if mirrored != nil {
			return *mirrored
		}
	}
	return models.JobProgress{JobKey: jobKey, Status: models.JobStatusNotFound, Message: "job not found"}
}

// Subscribe returns a channel receiving every later snapshot of jobKey; it is closed once the
// job reaches a terminal status. The current snapshot is delivered first. ok is false for keys
// the store does not hold.
func (s *ProgressStore) Subscribe(jobKey string) (<-chan models.JobProgress, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.entries[jobKey]
	if !found {
		return nil, func() {}, false
	}
	ch := make(chan models.JobProgress, 1)
	ch <- entry.snapshot
	if entry.snapshot.Status.Terminal() {
		close(ch)
		return ch, func() {}, true
	}
	entry.subs = append(entry.subs, ch)
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range entry.subs {
			if sub == ch {
				entry.subs = append(entry.subs[:i], entry.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, true
}

// Len reports how many jobs are held in memory.
func (s *ProgressStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict drops terminal entries older than the retention window and returns how many went.
func (s *ProgressStore) Evict() int {
	cutoff := s.now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for key, entry := range s.entries {
		if entry.snapshot.Status.Terminal() && entry.finishedAt.Before(cutoff) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// RunJanitor evicts expired entries every interval until ctx is done.
func (s *ProgressStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.Sugar().Debugw("evicted finished jobs", "count", n)
			}
		}
	}
}

// mirrorSave queues snap for the writer goroutine. A newer snapshot of the same key replaces one
// that has not been written yet.
func (s *ProgressStore) mirrorSave(snap models.JobProgress) {
	if s.mirror == nil {
		return
	}
	s.pendingMu.Lock()
	s.pending[snap.JobKey] = snap
	s.pendingMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *ProgressStore) runMirror() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.wake:
			s.flushMirror()
		case <-s.closing:
			s.flushMirror()
			return
		}
	}
}

func (s *ProgressStore) flushMirror() {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = make(map[string]models.JobProgress, len(batch))
	s.pendingMu.Unlock()

	for _, snap := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.mirror.Save(ctx, snap); err != nil {
			s.logger.Sugar().Warnw("progress mirror save failed", "job_key", snap.JobKey, "error", err)
		}
		cancel()
	}
}

func clampProgress(prev, next float64) float64 {
	if next > 100 {
		next = 100
	}
	if next < prev {
		return prev
	}
	return next
}
