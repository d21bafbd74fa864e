package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvyn/setgraph/internal/model"
	"github.com/corvyn/setgraph/internal/perr"
)

// memStore is an in-memory Store fake ordered by (priority desc, created_at asc).
type memStore struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*Task
	claimed map[uuid.UUID]bool
	done    []uuid.UUID
	dead    map[uuid.UUID]string
}

func newMemStore() *memStore {
	return &memStore{
		tasks:   make(map[uuid.UUID]*Task),
		claimed: make(map[uuid.UUID]bool),
		dead:    make(map[uuid.UUID]string),
	}
}

func (m *memStore) Enqueue(ctx context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) Claim(ctx context.Context, now time.Time) (Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*Task
	for _, t := range m.tasks {
		if m.claimed[t.ID] {
			continue
		}
		if t.NotBefore.After(now) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return Task{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	best := candidates[0]
	m.claimed[best.ID] = true
	return *best, true, nil
}

func (m *memStore) MarkDone(ctx context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	delete(m.claimed, taskID)
	m.done = append(m.done, taskID)
	return nil
}

func (m *memStore) MarkRetry(ctx context.Context, taskID uuid.UUID, notBefore time.Time, attempt int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	t.Attempt = attempt
	t.NotBefore = notBefore
	delete(m.claimed, taskID)
	return nil
}

func (m *memStore) MarkDeadLetter(ctx context.Context, taskID uuid.UUID, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	delete(m.claimed, taskID)
	m.dead[taskID] = lastErr
	return nil
}

func (m *memStore) snapshotDone() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, len(m.done))
	copy(out, m.done)
	return out
}

func (m *memStore) snapshotDead() map[uuid.UUID]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]string, len(m.dead))
	for k, v := range m.dead {
		out[k] = v
	}
	return out
}

func TestClaim_OrdersByPriorityThenCreatedAt(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	low := Task{ID: uuid.New(), Priority: 1, CreatedAt: now}
	high := Task{ID: uuid.New(), Priority: 5, CreatedAt: now.Add(time.Second)}
	require.NoError(t, store.Enqueue(context.Background(), low))
	require.NoError(t, store.Enqueue(context.Background(), high))

	claimed, ok, err := store.Claim(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, high.ID, claimed.ID, "higher priority wins regardless of age")
}

func TestDispatcher_SuccessMarksDone(t *testing.T) {
	store := newMemStore()
	task := Task{ID: uuid.New(), Kind: KindEnrich, Source: model.SourceSpotify, CreatedAt: time.Now()}
	require.NoError(t, store.Enqueue(context.Background(), task))

	var handled int32
	handler := func(ctx context.Context, tk Task) error {
		handled++
		return nil
	}

	d := New(store, handler, Config{TotalWorkers: 1, PerSourceLimit: 1, PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	assert.Contains(t, store.snapshotDone(), task.ID)
}

func TestDispatcher_RetriableErrorReschedulesWithBackoff(t *testing.T) {
	store := newMemStore()
	task := Task{ID: uuid.New(), Kind: KindEnrich, Source: model.SourceDiscogs, CreatedAt: time.Now()}
	require.NoError(t, store.Enqueue(context.Background(), task))

	handler := func(ctx context.Context, tk Task) error {
		return perr.New(perr.KindCircuitOpen, "discogs", "search", errors.New("breaker open"))
	}

	d := New(store, handler, Config{
		TotalWorkers: 1, PerSourceLimit: 1,
		BaseBackoff: time.Hour, MaxBackoff: 2 * time.Hour,
		PollInterval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	store.mu.Lock()
	defer store.mu.Unlock()
	rescheduled, ok := store.tasks[task.ID]
	require.True(t, ok, "retriable failures stay in the queue")
	assert.Equal(t, 1, rescheduled.Attempt)
	assert.True(t, rescheduled.NotBefore.After(time.Now()), "rescheduled into the future")
}

func TestDispatcher_NonRetriableErrorDeadLetters(t *testing.T) {
	store := newMemStore()
	task := Task{ID: uuid.New(), Kind: KindResolve, Source: model.SourceMixesDB, CreatedAt: time.Now()}
	require.NoError(t, store.Enqueue(context.Background(), task))

	handler := func(ctx context.Context, tk Task) error {
		return perr.New(perr.KindValidation, "mixesdb", "parse", errors.New("bad payload"))
	}

	d := New(store, handler, Config{TotalWorkers: 1, PerSourceLimit: 1, PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	dead := store.snapshotDead()
	assert.Contains(t, dead, task.ID)
	assert.Contains(t, dead[task.ID], "bad payload")
}

func TestDispatcher_PerSourceLimitBoundsConcurrency(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	const n = 6
	for i := 0; i < n; i++ {
		require.NoError(t, store.Enqueue(context.Background(), Task{
			ID: uuid.New(), Source: model.SourceSpotify, CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	var mu sync.Mutex
	var current, maxConcurrent int
	handler := func(ctx context.Context, tk Task) error {
		mu.Lock()
		current++
		if current > maxConcurrent {
			maxConcurrent = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return nil
	}

	d := New(store, handler, Config{TotalWorkers: 6, PerSourceLimit: 2, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxConcurrent, 2, "per-source semaphore must cap concurrency at the configured limit")
}

func TestRetryDelay_GrowsWithAttemptAndCapsAtMax(t *testing.T) {
	base := 10 * time.Second
	max := time.Minute

	d1 := RetryDelay(1, base, max)
	d5 := RetryDelay(5, base, max)

	assert.GreaterOrEqual(t, d1, time.Duration(0))
	assert.LessOrEqual(t, d1, max)
	assert.LessOrEqual(t, d5, max)
}

func TestRetryDelay_ZeroOrNegativeAttemptTreatedAsOne(t *testing.T) {
	base := 5 * time.Second
	max := time.Hour
	d0 := RetryDelay(0, base, max)
	d1 := RetryDelay(1, base, max)
	assert.Equal(t, d0 > 0, d1 > 0)
}
