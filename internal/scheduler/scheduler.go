// Package scheduler implements C6: deciding which (source, target) to
// fetch next, enforcing per-source min/max intervals, running overdue
// work on startup, and rotating through a set of target tracks, per
// spec.md §4.6.
//
// There is no ticker-driven scheduling loop anywhere in the teacher
// (derat-nup is a batch `nup update` CLI invoked by cron, not a
// long-running scheduler), so the state machine here is built fresh.
// Last-run tracking is grounded on the idea in
// server/ratelimit/ratelimit.go's Attempt of keeping a small piece of
// state per key and mutating it transactionally; here that's expressed
// as a Store interface. MemStore is its only implementation, so last-run
// times and target-track cursors live in process memory and do not
// survive a restart.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/corvyn/setgraph/internal/model"
)

// SourceConfig is the per-source configuration enumerated in spec.md §6.
type SourceConfig struct {
	MinInterval        time.Duration
	MaxInterval        time.Duration
	Priority            int
	Enabled             bool
	RespectRobots       bool
	AdaptiveScheduling  bool
	MaxConcurrentPages  int
	RetryOnFailure      bool
}

// TargetTrack is a canonical search seed the scheduler rotates through.
type TargetTrack struct {
	ID       string
	Priority int
}

// Batch is a unit of work emitted by Tick: a source and the target
// tracks its next run should search for.
type Batch struct {
	Source  model.Source
	Targets []TargetTrack
}

// RunOutcome summarizes one source's completed run, feeding the
// adaptive re-interval calculation.
type RunOutcome struct {
	Source          model.Source
	SuccessRatio    float64 // [0,1] fraction of requests that succeeded
	RateLimitHits   int     // count of 429s observed during the run
	ExpectedRequests int    // number of requests the run was expected to make
}

// Store persists scheduler state across restarts.
type Store interface {
	GetLastRun(ctx context.Context, src model.Source) (time.Time, bool, error)
	SetLastRun(ctx context.Context, src model.Source, at time.Time) error
	GetCursor(ctx context.Context, src model.Source) (int, error)
	SetCursor(ctx context.Context, src model.Source, cursor int) error
}

// MemStore is an in-memory Store, primarily for tests and for sources
// that don't need durability across restarts.
type MemStore struct {
	mu       sync.Mutex
	lastRun  map[model.Source]time.Time
	cursors  map[model.Source]int
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{lastRun: make(map[model.Source]time.Time), cursors: make(map[model.Source]int)}
}

func (m *MemStore) GetLastRun(_ context.Context, src model.Source) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastRun[src]
	return t, ok, nil
}

func (m *MemStore) SetLastRun(_ context.Context, src model.Source, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun[src] = at
	return nil
}

func (m *MemStore) GetCursor(_ context.Context, src model.Source) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[src], nil
}

func (m *MemStore) SetCursor(_ context.Context, src model.Source, cursor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[src] = cursor
	return nil
}

// CrawlDelayFunc returns the current effective per-host crawl delay
// for a source, per C4; used to enforce "next >= robots-delay ×
// expected_requests_per_run".
type CrawlDelayFunc func(src model.Source) time.Duration

// Scheduler decides which source to run next and tracks the interval
// state each run adjusts.
type Scheduler struct {
	store      Store
	crawlDelay CrawlDelayFunc

	mu      sync.Mutex
	configs map[model.Source]SourceConfig
	targets map[model.Source][]TargetTrack
	running map[model.Source]bool // anti-overlap guard
	current map[model.Source]time.Duration
}

// New builds a Scheduler. crawlDelay may be nil if no source enforces
// §4.6's robots-delay floor.
func New(store Store, configs map[model.Source]SourceConfig, crawlDelay CrawlDelayFunc) *Scheduler {
	current := make(map[model.Source]time.Duration, len(configs))
	for src, cfg := range configs {
		current[src] = cfg.MinInterval
	}
	return &Scheduler{
		store:      store,
		crawlDelay: crawlDelay,
		configs:    configs,
		targets:    make(map[model.Source][]TargetTrack),
		running:    make(map[model.Source]bool),
		current:    current,
	}
}

// SetTargetTracks installs the rotation seed list for a source,
// priority-weighted by the caller's ordering.
func (s *Scheduler) SetTargetTracks(src model.Source, tracks []TargetTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[src] = tracks
}

// due reports whether src's next run is due at now, per its current
// (possibly adaptively-adjusted) interval.
func (s *Scheduler) due(ctx context.Context, src model.Source, now time.Time) (bool, error) {
	lastRun, ok, err := s.store.GetLastRun(ctx, src)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	s.mu.Lock()
	interval := s.current[src]
	s.mu.Unlock()
	return now.Sub(lastRun) >= interval, nil
}

// Tick evaluates every enabled, non-running source and returns a batch
// for each one that is due, advancing its target-track cursor. Callers
// are expected to run each returned batch and eventually call
// MarkRunning/MarkDone around the work.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, batchSize int) ([]Batch, error) {
	var batches []Batch
	for src, cfg := range s.configs {
		if !cfg.Enabled {
			continue
		}
		s.mu.Lock()
		running := s.running[src]
		s.mu.Unlock()
		if running {
			continue // anti-overlap guard: at most one run per source at a time
		}
		due, err := s.due(ctx, src, now)
		if err != nil {
			return nil, fmt.Errorf("scheduler: checking due for %s: %w", src, err)
		}
		if !due {
			continue
		}
		targets, err := s.nextBatchTargets(ctx, src, batchSize)
		if err != nil {
			return nil, fmt.Errorf("scheduler: advancing cursor for %s: %w", src, err)
		}
		if len(targets) == 0 {
			continue
		}
		batches = append(batches, Batch{Source: src, Targets: targets})
	}
	return batches, nil
}

// nextBatchTargets returns the next batchSize target tracks for src,
// rotating the persisted cursor and wrapping at the end of the list.
func (s *Scheduler) nextBatchTargets(ctx context.Context, src model.Source, batchSize int) ([]TargetTrack, error) {
	s.mu.Lock()
	tracks := s.targets[src]
	s.mu.Unlock()
	if len(tracks) == 0 {
		return nil, nil
	}
	cursor, err := s.store.GetCursor(ctx, src)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 || batchSize > len(tracks) {
		batchSize = len(tracks)
	}
	out := make([]TargetTrack, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		out = append(out, tracks[(cursor+i)%len(tracks)])
	}
	return out, s.store.SetCursor(ctx, src, (cursor+batchSize)%len(tracks))
}

// MarkRunning records that src's run has started, enforcing the
// anti-overlap guard for subsequent Tick calls.
func (s *Scheduler) MarkRunning(src model.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[src] = true
}

// MarkDone records src's run as complete, updates last-run, and
// recomputes its adaptive interval from the run's outcome.
func (s *Scheduler) MarkDone(ctx context.Context, outcome RunOutcome, now time.Time) error {
	s.mu.Lock()
	cfg := s.configs[outcome.Source]
	s.running[outcome.Source] = false
	s.mu.Unlock()

	if err := s.store.SetLastRun(ctx, outcome.Source, now); err != nil {
		return fmt.Errorf("scheduler: recording last run for %s: %w", outcome.Source, err)
	}

	if !cfg.AdaptiveScheduling {
		return nil
	}
	next := AdaptiveInterval(cfg.MinInterval, cfg.MaxInterval, outcome.SuccessRatio, outcome.RateLimitHits)
	if s.crawlDelay != nil {
		if floor := s.crawlDelay(outcome.Source) * time.Duration(outcome.ExpectedRequests); floor > next {
			next = floor
		}
	}
	s.mu.Lock()
	s.current[outcome.Source] = next
	s.mu.Unlock()
	return nil
}

// AdaptiveInterval implements spec.md §4.6's re-interval formula.
func AdaptiveInterval(min, max time.Duration, successRatio float64, rateLimitHits int) time.Duration {
	var base time.Duration
	switch {
	case successRatio >= 0.95:
		base = min
	case successRatio >= 0.80:
		base = time.Duration(float64(min) * 1.5)
	case successRatio >= 0.50:
		base = min * 2
	default:
		base = min * 4
		if base > max {
			base = max
		}
	}
	multiplier := math.Min(4, math.Pow(1.5, float64(rateLimitHits)))
	result := time.Duration(float64(base) * multiplier)
	if result > max {
		result = max
	}
	if result < min {
		result = min
	}
	return result
}

// StartupOverdue returns every enabled source that is currently due,
// for the startup procedure: mark all enabled sources, check overdue,
// run overdue ones in parallel, then fall back to recurring Tick
// calls.
func (s *Scheduler) StartupOverdue(ctx context.Context, now time.Time) ([]model.Source, error) {
	var overdue []model.Source
	for src, cfg := range s.configs {
		if !cfg.Enabled {
			continue
		}
		due, err := s.due(ctx, src, now)
		if err != nil {
			return nil, err
		}
		if due {
			overdue = append(overdue, src)
		}
	}
	return overdue, nil
}
