package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvyn/setgraph/internal/model"
)

func baseConfig() map[model.Source]SourceConfig {
	return map[model.Source]SourceConfig{
		model.SourceSpotify: {
			MinInterval: time.Minute, MaxInterval: time.Hour, Enabled: true,
			AdaptiveScheduling: true,
		},
	}
}

func TestTick_DueOnFirstRun(t *testing.T) {
	s := New(NewMemStore(), baseConfig(), nil)
	s.SetTargetTracks(model.SourceSpotify, []TargetTrack{{ID: "t1"}, {ID: "t2"}})

	batches, err := s.Tick(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, model.SourceSpotify, batches[0].Source)
	assert.Len(t, batches[0].Targets, 2)
}

func TestTick_NotDueBeforeInterval(t *testing.T) {
	store := NewMemStore()
	s := New(store, baseConfig(), nil)
	s.SetTargetTracks(model.SourceSpotify, []TargetTrack{{ID: "t1"}})

	now := time.Now()
	require.NoError(t, store.SetLastRun(context.Background(), model.SourceSpotify, now))

	batches, err := s.Tick(context.Background(), now.Add(10*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestTick_AntiOverlapGuard(t *testing.T) {
	s := New(NewMemStore(), baseConfig(), nil)
	s.SetTargetTracks(model.SourceSpotify, []TargetTrack{{ID: "t1"}})
	s.MarkRunning(model.SourceSpotify)

	batches, err := s.Tick(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestTick_DisabledSourceSkipped(t *testing.T) {
	configs := baseConfig()
	cfg := configs[model.SourceSpotify]
	cfg.Enabled = false
	configs[model.SourceSpotify] = cfg
	s := New(NewMemStore(), configs, nil)
	s.SetTargetTracks(model.SourceSpotify, []TargetTrack{{ID: "t1"}})

	batches, err := s.Tick(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestCursorRotation_WrapsAround(t *testing.T) {
	store := NewMemStore()
	s := New(store, baseConfig(), nil)
	s.SetTargetTracks(model.SourceSpotify, []TargetTrack{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	first, err := s.nextBatchTargets(context.Background(), model.SourceSpotify, 2)
	require.NoError(t, err)
	assert.Equal(t, []TargetTrack{{ID: "a"}, {ID: "b"}}, first)

	second, err := s.nextBatchTargets(context.Background(), model.SourceSpotify, 2)
	require.NoError(t, err)
	assert.Equal(t, []TargetTrack{{ID: "c"}, {ID: "a"}}, second)
}

func TestMarkDone_PersistsLastRunAndAdjustsInterval(t *testing.T) {
	store := NewMemStore()
	s := New(store, baseConfig(), nil)
	now := time.Now()

	require.NoError(t, s.MarkDone(context.Background(), RunOutcome{
		Source: model.SourceSpotify, SuccessRatio: 0.40, RateLimitHits: 0,
	}, now))

	lastRun, ok, err := store.GetLastRun(context.Background(), model.SourceSpotify)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now, lastRun)

	s.mu.Lock()
	interval := s.current[model.SourceSpotify]
	s.mu.Unlock()
	assert.Equal(t, 4*time.Minute, interval) // success < 50% -> min*4
}

func TestAdaptiveInterval_Bands(t *testing.T) {
	min, max := time.Minute, time.Hour
	assert.Equal(t, min, AdaptiveInterval(min, max, 0.98, 0))
	assert.Equal(t, 90*time.Second, AdaptiveInterval(min, max, 0.85, 0))
	assert.Equal(t, 2*time.Minute, AdaptiveInterval(min, max, 0.60, 0))
	assert.Equal(t, 4*time.Minute, AdaptiveInterval(min, max, 0.10, 0))
}

func TestAdaptiveInterval_RateLimitMultiplierCappedAtFour(t *testing.T) {
	min, max := time.Minute, 10*time.Hour
	got := AdaptiveInterval(min, max, 0.98, 10) // 1.5^10 >> 4, should cap
	assert.Equal(t, 4*time.Minute, got)
}

func TestAdaptiveInterval_CappedByMax(t *testing.T) {
	got := AdaptiveInterval(time.Minute, 2*time.Minute, 0.10, 0)
	assert.Equal(t, 2*time.Minute, got)
}

func TestStartupOverdue_ReturnsDueSourcesOnly(t *testing.T) {
	store := NewMemStore()
	configs := map[model.Source]SourceConfig{
		model.SourceSpotify: {MinInterval: time.Minute, MaxInterval: time.Hour, Enabled: true},
		model.SourceTidal:   {MinInterval: time.Minute, MaxInterval: time.Hour, Enabled: true},
	}
	s := New(store, configs, nil)
	now := time.Now()
	require.NoError(t, store.SetLastRun(context.Background(), model.SourceTidal, now))

	overdue, err := s.StartupOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []model.Source{model.SourceSpotify}, overdue)
}
