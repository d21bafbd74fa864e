// Package providers implements C9's concrete external metadata
// clients: one small type per service, each satisfying an
// internal/enrich provider interface.
//
// The request/retry shape is grounded on
// cmd/nup/metadata/musicbrainz.go's api type: a rate limiter gates
// outbound requests, a typed httpError classifies 4xx/5xx, and get
// retries non-fatal errors a fixed number of times with a fixed delay.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvyn/setgraph/internal/perr"
)

const (
	defaultMaxTries   = 3
	defaultRetryDelay = 2 * time.Second
)

// httpError is returned by client.get for non-200 responses.
type httpError struct {
	code   int
	status string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("server returned %d (%q)", e.code, e.status)
}

// fatal reports whether the request that produced e should not be retried.
func (e *httpError) fatal() bool {
	switch e.code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// client is the shared rate-limited, retrying HTTP transport every
// provider in this package embeds.
type client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	authHeader func(req *http.Request) // sets auth headers/query params; may be nil

	maxTries   int
	retryDelay time.Duration
}

func newClient(name, baseURL string, qps float64, burst int, userAgent string, authHeader func(req *http.Request)) *client {
	return &client{
		name:       name,
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(qps), burst),
		userAgent:  userAgent,
		authHeader: authHeader,
		maxTries:   defaultMaxTries,
		retryDelay: defaultRetryDelay,
	}
}

// get sends a rate-limited GET request to c.baseURL+path and decodes
// the JSON response body into dst, retrying transient failures.
func (c *client) get(ctx context.Context, path string, dst interface{}) error {
	try := func() (io.ReadCloser, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if c.authHeader != nil {
			c.authHeader(req)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, &httpError{resp.StatusCode, resp.Status}
		}
		if resp.StatusCode != http.StatusOK {
			err = &httpError{resp.StatusCode, resp.Status}
		}
		return resp.Body, err
	}

	var tries int
	for {
		body, err := try()
		tries++

		if err == nil {
			defer body.Close()
			return json.NewDecoder(body).Decode(dst)
		}
		if body != nil {
			body.Close()
		}

		he, isHTTPErr := err.(*httpError)
		if isHTTPErr && he.fatal() {
			return c.classify(err, he.code)
		}
		if tries >= c.maxTries {
			if isHTTPErr {
				return c.classify(err, he.code)
			}
			return perr.New(perr.KindHTTP, c.name, path, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *client) classify(err error, status int) error {
	return perr.FromHTTPStatus(c.name, "", status)
}

// notFound reports whether err is the classified not-found case, the
// idiom every provider uses to turn a 404 into (zero, false, nil)
// rather than propagating an error for "no match".
func notFound(err error) bool {
	var pe *perr.Error
	if errors.As(err, &pe) {
		return pe.Kind == perr.KindNotFound
	}
	return false
}
