package robots

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves a fixed robots.txt body for every request, or fails
// every request with err when err is set.
type fakeClient struct {
	body       string
	statusCode int
	err        error
}

func (f *fakeClient) Do(req *http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	code := f.statusCode
	if code == 0 {
		code = http.StatusOK
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
	}, nil
}

func TestIsAllowed_Disallow(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\nDisallow: /private\n"}
	g := New(client, "setgraph-bot", time.Millisecond)

	allowed, err := g.IsAllowed(context.Background(), "https://example.com/private/page")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = g.IsAllowed(context.Background(), "https://example.com/public/page")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestIsAllowed_UnreachableFailsOpen(t *testing.T) {
	client := &fakeClient{err: errors.New("dial tcp: connection refused")}
	g := New(client, "setgraph-bot", time.Millisecond)
	allowed, err := g.IsAllowed(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCrawlDelay_UsesRobotsWhenLarger(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\nCrawl-delay: 30\n"}
	g := New(client, "setgraph-bot", 5*time.Second)
	ctx := context.Background()
	_, err := g.IsAllowed(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, g.CrawlDelay("example.com"))
}

func TestCrawlDelay_FloorWinsWhenRobotsSmaller(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\nCrawl-delay: 1\n"}
	g := New(client, "setgraph-bot", 10*time.Second)
	ctx := context.Background()
	_, err := g.IsAllowed(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, g.CrawlDelay("example.com"))
}

func TestReportOutcome_BackoffOn429(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\n"}
	g := New(client, "setgraph-bot", time.Second)
	g.ReportOutcome("example.com", http.StatusTooManyRequests, time.Unix(0, 0))
	assert.Equal(t, 2*time.Second, g.CrawlDelay("example.com"))
	g.ReportOutcome("example.com", http.StatusTooManyRequests, time.Unix(0, 0))
	assert.Equal(t, 4*time.Second, g.CrawlDelay("example.com"))
	// Capped at 4x.
	g.ReportOutcome("example.com", http.StatusTooManyRequests, time.Unix(0, 0))
	assert.Equal(t, 4*time.Second, g.CrawlDelay("example.com"))
}

func TestReportOutcome_RelaxesOnSustainedSuccess(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\n"}
	g := New(client, "setgraph-bot", time.Second)
	g.ReportOutcome("example.com", http.StatusTooManyRequests, time.Unix(0, 0))
	assert.Equal(t, 2*time.Second, g.CrawlDelay("example.com"))

	for i := 0; i < windowSize; i++ {
		g.ReportOutcome("example.com", http.StatusOK, time.Unix(int64(i), 0))
	}
	assert.Equal(t, time.Second, g.CrawlDelay("example.com"))
}

func TestStatsFor_CountsRequests(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\n"}
	g := New(client, "setgraph-bot", time.Second)
	g.ReportOutcome("example.com", http.StatusOK, time.Unix(1, 0))
	g.ReportOutcome("example.com", http.StatusTooManyRequests, time.Unix(2, 0))

	stats := g.StatsFor("example.com")
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.SuccessfulRequests)
	assert.EqualValues(t, 1, stats.RateLimitHits)
}

func TestAcquire_DisallowedReturnsError(t *testing.T) {
	client := &fakeClient{body: "User-agent: *\nDisallow: /blocked\n"}
	g := New(client, "setgraph-bot", time.Millisecond)
	err := g.Acquire(context.Background(), "https://example.com/blocked")
	assert.Error(t, err)
}
