// Package queue implements C12: a bounded worker pool that pulls
// persisted enrichment/resolution tasks and executes them, with
// per-source concurrency limits and retry-with-jitter discipline.
//
// The worker shape is grounded on cmd/nup/storage/command.go's
// jobChan/resChan worker-pool ("see https://gobyexample.com/worker-pools"),
// generalized from a fixed in-memory job slice to a durable, re-pollable
// Store so the pool survives restarts per spec.md §4.12.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/corvyn/setgraph/internal/model"
	"github.com/corvyn/setgraph/internal/perr"
)

// Kind identifies which pipeline stage a task runs.
type Kind string

const (
	KindEnrich  Kind = "enrich"
	KindResolve Kind = "resolve"
)

// Task is one unit of work: run C9 or C10 for a track.
type Task struct {
	ID        uuid.UUID
	Kind      Kind
	TrackID   uuid.UUID
	Source    model.Source
	Priority  int
	CreatedAt time.Time
	Attempt   int
	NotBefore time.Time
}

// Store persists the queue so it survives process restarts, ordered
// by (priority, created_at) per spec.md §4.12. Implementations must
// make Claim atomic against concurrent workers (e.g. `SELECT ... FOR
// UPDATE SKIP LOCKED` or equivalent).
type Store interface {
	Enqueue(ctx context.Context, t Task) error
	// Claim returns the highest-priority, oldest ready task (NotBefore
	// <= now) and marks it claimed, or ok=false if none is ready.
	Claim(ctx context.Context, now time.Time) (Task, bool, error)
	MarkDone(ctx context.Context, taskID uuid.UUID) error
	MarkRetry(ctx context.Context, taskID uuid.UUID, notBefore time.Time, attempt int, lastErr string) error
	MarkDeadLetter(ctx context.Context, taskID uuid.UUID, lastErr string) error
}

// Handler executes one task. A returned error's retriability (via
// perr.IsRetriable) decides whether the task is rescheduled or
// dead-lettered.
type Handler func(ctx context.Context, t Task) error

// Config bounds the dispatcher's concurrency and retry behavior.
type Config struct {
	TotalWorkers   int
	PerSourceLimit int           // 0 means unbounded per source
	BaseBackoff    time.Duration // default 30s
	MaxBackoff     time.Duration // default 1h
	PollInterval   time.Duration // how often idle workers recheck Store
}

// DefaultConfig returns the spec's baseline concurrency/retry knobs.
func DefaultConfig() Config {
	return Config{
		TotalWorkers:   10,
		PerSourceLimit: 4,
		BaseBackoff:    30 * time.Second,
		MaxBackoff:     time.Hour,
		PollInterval:   time.Second,
	}
}

// Dispatcher runs Config.TotalWorkers goroutines against Store,
// serializing concurrency per source through a counting semaphore per
// model.Source. Per-host serialization is left to C4's fetcher, which
// a Handler calls into; the dispatcher knows nothing about hosts.
type Dispatcher struct {
	store   Store
	handler Handler
	cfg     Config

	semMu sync.Mutex
	sems  map[model.Source]chan struct{}
}

// New builds a Dispatcher.
func New(store Store, handler Handler, cfg Config) *Dispatcher {
	if cfg.TotalWorkers <= 0 {
		cfg.TotalWorkers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Dispatcher{
		store:   store,
		handler: handler,
		cfg:     cfg,
		sems:    make(map[model.Source]chan struct{}),
	}
}

// sourceSem returns (lazily creating) the counting semaphore gating
// concurrent tasks for src.
func (d *Dispatcher) sourceSem(src model.Source) chan struct{} {
	if d.cfg.PerSourceLimit <= 0 {
		return nil
	}
	d.semMu.Lock()
	defer d.semMu.Unlock()
	sem, ok := d.sems[src]
	if !ok {
		sem = make(chan struct{}, d.cfg.PerSourceLimit)
		d.sems[src] = sem
	}
	return sem
}

// Run starts the worker pool and blocks until ctx is canceled, then
// waits for in-flight tasks to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.TotalWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runWorker(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok, err := d.store.Claim(ctx, time.Now())
		if err != nil || !ok {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		d.execute(ctx, task)
	}
}

// execute runs one claimed task, gated by its source's concurrency
// semaphore, and records the outcome.
func (d *Dispatcher) execute(ctx context.Context, task Task) {
	if sem := d.sourceSem(task.Source); sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			return
		}
	}

	err := d.handler(ctx, task)
	if err == nil {
		_ = d.store.MarkDone(ctx, task.ID)
		return
	}

	if !perr.IsRetriable(err) {
		_ = d.store.MarkDeadLetter(ctx, task.ID, err.Error())
		return
	}

	attempt := task.Attempt + 1
	notBefore := time.Now().Add(RetryDelay(attempt, d.cfg.BaseBackoff, d.cfg.MaxBackoff))
	_ = d.store.MarkRetry(ctx, task.ID, notBefore, attempt, err.Error())
}

// RetryDelay computes the exponential-backoff-with-jitter delay
// before a task's next attempt, per spec.md §4.12. attempt is
// 1-indexed (the first retry passes attempt=1).
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.3
	b.MaxElapsedTime = 0 // never stop producing backoffs
	b.Reset()

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay <= 0 || delay > max {
		delay = max
	}
	return delay
}
