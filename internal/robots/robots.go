// Package robots implements C4, the robots & rate governor: per-host
// robots.txt caching and a per-host token bucket with adaptive
// back-off, per spec.md §4.4.
//
// The rate-limited-request shape is grounded on
// cmd/nup/metadata/musicbrainz.go's api type (a golang.org/x/time/rate
// limiter guarding an HTTP client, retried with typed fatal/retriable
// errors), generalized from a single fixed-QPS MusicBrainz client to a
// per-host table with adaptive interval adjustment. The sliding-window
// idea of counting recent events within an interval is grounded on
// server/ratelimit/ratelimit.go's Attempt, reimplemented over an
// in-process per-host rate.Limiter instead of a Datastore transaction
// since there is no Datastore in this design (see DESIGN.md).
package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// DefaultMinInterval is the conservative floor between requests to a
// host absent any robots.txt crawl-delay, per spec.md §4.4.
const DefaultMinInterval = 10 * time.Second

// MaxBackoffMultiplier caps the exponential back-off applied after 429s.
const MaxBackoffMultiplier = 4

// RelaxSuccessThreshold is the success ratio over the trailing window
// above which the effective delay is allowed to relax back toward
// min_interval.
const RelaxSuccessThreshold = 0.95

const windowSize = 50 // trailing requests tracked per host for the success ratio

// hostState tracks rate limiting and robots.txt state for one host.
type hostState struct {
	mu sync.Mutex

	minInterval   time.Duration // floor: max(robots crawl-delay, configured minimum)
	backoffFactor int           // current multiplier on minInterval, 1..MaxBackoffMultiplier
	limiter       *rate.Limiter

	robots    *robotstxt.RobotsData
	robotsErr error
	fetchedAt time.Time

	totalRequests      int64
	successfulRequests int64
	rateLimitHits      int64
	lastResponseTime   time.Time

	// outcomes is a ring buffer of recent success/failure bits used to
	// compute the trailing success ratio for back-off relaxation.
	outcomes    [windowSize]bool
	outcomeHead int
	outcomeLen  int
}

func (h *hostState) effectiveInterval() time.Duration {
	return h.minInterval * time.Duration(h.backoffFactor)
}

func (h *hostState) recordOutcome(success bool) {
	h.outcomes[h.outcomeHead] = success
	h.outcomeHead = (h.outcomeHead + 1) % windowSize
	if h.outcomeLen < windowSize {
		h.outcomeLen++
	}
}

func (h *hostState) successRatio() float64 {
	if h.outcomeLen == 0 {
		return 1.0
	}
	var ok int
	for i := 0; i < h.outcomeLen; i++ {
		if h.outcomes[i] {
			ok++
		}
	}
	return float64(ok) / float64(h.outcomeLen)
}

// Fetcher is the minimal HTTP surface Governor needs; *http.Client
// satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Governor enforces robots.txt and per-host rate limits across sources.
// It is safe for concurrent use.
type Governor struct {
	client      Fetcher
	userAgent   string
	minInterval time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

// New creates a Governor. minInterval is the configured floor used
// absent (or below) a robots.txt crawl-delay; pass 0 to use
// DefaultMinInterval.
func New(client Fetcher, userAgent string, minInterval time.Duration) *Governor {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Governor{
		client:      client,
		userAgent:   userAgent,
		minInterval: minInterval,
		hosts:       make(map[string]*hostState),
	}
}

func (g *Governor) state(host string) *hostState {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hosts[host]
	if !ok {
		h = &hostState{
			minInterval:   g.minInterval,
			backoffFactor: 1,
			limiter:       rate.NewLimiter(rate.Every(g.minInterval), 1),
		}
		g.hosts[host] = h
	}
	return h
}

// ensureRobots fetches and caches robots.txt for host if not already
// cached. Fetch failures are cached too (treated as "allow all"),
// matching robots.txt convention for unreachable hosts.
func (g *Governor) ensureRobots(ctx context.Context, h *hostState, scheme, host string) {
	h.mu.Lock()
	if !h.fetchedAt.IsZero() {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", nil)
	if err != nil {
		h.mu.Lock()
		h.robotsErr = err
		h.fetchedAt = time.Now()
		h.mu.Unlock()
		return
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetchedAt = time.Now()
	if err != nil {
		h.robotsErr = err
		return
	}
	defer resp.Body.Close()
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		h.robotsErr = err
		return
	}
	h.robots = data

	if delay := data.FindGroup(g.userAgent).CrawlDelay; delay > 0 && delay > h.minInterval {
		h.minInterval = delay
		h.limiter.SetLimit(rate.Every(h.effectiveInterval()))
	}
}

// IsAllowed reports whether rawURL may be fetched per the host's
// robots.txt, fetching and caching it first if necessary.
func (g *Governor) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse %q: %w", rawURL, err)
	}
	h := g.state(u.Host)
	g.ensureRobots(ctx, h, u.Scheme, u.Host)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.robots == nil {
		// Unreachable or malformed robots.txt: fail open, as most
		// crawlers do when a site has none.
		return true, nil
	}
	return h.robots.TestAgent(u.Path, g.userAgent), nil
}

// CrawlDelay returns the current effective delay between requests to
// host (robots.txt crawl-delay or the configured minimum, whichever is
// larger, times the current back-off multiplier).
func (g *Governor) CrawlDelay(host string) time.Duration {
	h := g.state(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effectiveInterval()
}

// Acquire blocks until a request to rawURL's host is permitted by both
// robots.txt and the rate limiter. It returns an error if the request
// is disallowed by robots.txt, or if ctx is canceled while waiting.
func (g *Governor) Acquire(ctx context.Context, rawURL string) error {
	allowed, err := g.IsAllowed(ctx, rawURL)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("robots: %s disallowed by robots.txt", rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("robots: parse %q: %w", rawURL, err)
	}
	h := g.state(u.Host)
	return h.limiter.Wait(ctx)
}

// ReportOutcome updates per-host counters after a request completes.
// statusCode is the HTTP status observed, or 0 if the request failed
// before receiving one.
func (g *Governor) ReportOutcome(host string, statusCode int, at time.Time) {
	h := g.state(host)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.lastResponseTime = at
	success := statusCode > 0 && statusCode < 400 && statusCode != http.StatusTooManyRequests
	h.recordOutcome(success)

	if statusCode == http.StatusTooManyRequests {
		h.rateLimitHits++
		if h.backoffFactor < MaxBackoffMultiplier {
			h.backoffFactor *= 2
			if h.backoffFactor > MaxBackoffMultiplier {
				h.backoffFactor = MaxBackoffMultiplier
			}
			h.limiter.SetLimit(rate.Every(h.effectiveInterval()))
		}
		return
	}

	if success {
		h.successfulRequests++
	}

	if h.backoffFactor > 1 && h.successRatio() > RelaxSuccessThreshold {
		h.backoffFactor--
		h.limiter.SetLimit(rate.Every(h.effectiveInterval()))
	}
}

// Stats is a snapshot of a host's counters, per spec.md §4.4.
type Stats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	RateLimitHits      int64
	LastResponseTime   time.Time
	BackoffFactor      int
	EffectiveInterval  time.Duration
}

// StatsFor returns a snapshot of host's counters.
func (g *Governor) StatsFor(host string) Stats {
	h := g.state(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TotalRequests:      h.totalRequests,
		SuccessfulRequests: h.successfulRequests,
		RateLimitHits:      h.rateLimitHits,
		LastResponseTime:   h.lastResponseTime,
		BackoffFactor:      h.backoffFactor,
		EffectiveInterval:  h.effectiveInterval(),
	}
}
