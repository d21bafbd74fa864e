// Package source defines C5, the source adapter interface: the
// contract each site-specific scraper implements, plus a registry
// adapters are looked up by spec.md §4.5's source identifier.
//
// The interface shape is grounded on cmd/nup/metadata/musicbrainz.go's
// api type generalized from a single hardcoded MusicBrainz client into
// a pluggable per-source contract, and on cmd/nup/client/files's
// Fetcher abstraction for the "fetch over HTTP, honoring a deadline"
// half of the contract.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/corvyn/setgraph/internal/model"
)

// RawResponse is what Fetch returns: the raw bytes of a fetched page
// plus enough metadata for the caller to report outcomes to C4.
type RawResponse struct {
	URL        string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	FetchedAt  time.Time
}

// TargetRef is a next-level fetch target discovered while parsing an
// index page, e.g. a playlist URL found on a search results page.
type TargetRef struct {
	URL      string
	Priority int
}

// IntervalHints bounds how often a source should be polled.
type IntervalHints struct {
	Min time.Duration
	Max time.Duration
}

// Adapter is the contract a site-specific scraper implements. Adapters
// are stateless given their config: all mutable state (rate limits,
// schedules, bronze storage) lives in C4, C6, and C7, never in the
// adapter itself. Adapters must never write to silver; every failure
// mode is returned as a typed error via the perr package.
type Adapter interface {
	// Name identifies the source this adapter serves.
	Name() model.Source

	// AllowedDomains lists the hosts this adapter is permitted to
	// fetch from; used by the rate governor to key its per-host state.
	AllowedDomains() []string

	// PriorityHint influences scheduling order relative to other
	// sources; higher runs sooner when multiple sources are overdue.
	PriorityHint() int

	// IntervalHints bounds the scheduler's min/max polling interval
	// for this source.
	IntervalHints() IntervalHints

	// Fetch retrieves target (a URL or an adapter-defined search seed)
	// over HTTPS. Callers are expected to have already cleared the
	// request with the rate governor.
	Fetch(ctx context.Context, target string) (RawResponse, error)

	// ParseIndex extracts next-level targets from an index/listing
	// response, e.g. playlist URLs from a search results page.
	ParseIndex(resp RawResponse) ([]TargetRef, error)

	// ParseDetail extracts one or more canonical bronze records from a
	// detail-page response, each with ScrapeType already set.
	ParseDetail(resp RawResponse) ([]model.RawScrape, error)
}

// Registry looks up adapters by source identifier.
type Registry struct {
	adapters map[model.Source]Adapter
}

// NewRegistry builds a Registry from a set of adapters, indexed by
// their own Name().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter registered for source, or false if none is
// registered.
func (r *Registry) Get(src model.Source) (Adapter, bool) {
	a, ok := r.adapters[src]
	return a, ok
}

// MustGet is like Get but panics if src has no registered adapter; it
// is intended for startup wiring, not request-time lookups.
func (r *Registry) MustGet(src model.Source) Adapter {
	a, ok := r.Get(src)
	if !ok {
		panic(fmt.Sprintf("source: no adapter registered for %q", src))
	}
	return a
}

// All returns every registered source, in registration order is not
// guaranteed; callers that need a stable order should sort the result.
func (r *Registry) All() []model.Source {
	out := make([]model.Source, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	return out
}
