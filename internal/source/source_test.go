package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corvyn/setgraph/internal/model"
)

type stubAdapter struct {
	name model.Source
}

func (s *stubAdapter) Name() model.Source          { return s.name }
func (s *stubAdapter) AllowedDomains() []string     { return []string{"example.com"} }
func (s *stubAdapter) PriorityHint() int            { return 1 }
func (s *stubAdapter) IntervalHints() IntervalHints { return IntervalHints{Min: time.Minute, Max: time.Hour} }
func (s *stubAdapter) Fetch(ctx context.Context, target string) (RawResponse, error) {
	return RawResponse{URL: target, StatusCode: 200}, nil
}
func (s *stubAdapter) ParseIndex(resp RawResponse) ([]TargetRef, error) { return nil, nil }
func (s *stubAdapter) ParseDetail(resp RawResponse) ([]model.RawScrape, error) {
	return nil, nil
}

func TestRegistry_GetAndMustGet(t *testing.T) {
	a := &stubAdapter{name: model.SourceSpotify}
	r := NewRegistry(a)

	got, ok := r.Get(model.SourceSpotify)
	assert.True(t, ok)
	assert.Same(t, a, got)

	assert.Same(t, a, r.MustGet(model.SourceSpotify))
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(model.SourceTidal)
	assert.False(t, ok)
}

func TestRegistry_MustGetPanicsOnMissing(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.MustGet(model.SourceDiscogs) })
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry(&stubAdapter{name: model.SourceSpotify}, &stubAdapter{name: model.SourceTidal})
	assert.ElementsMatch(t, []model.Source{model.SourceSpotify, model.SourceTidal}, r.All())
}
