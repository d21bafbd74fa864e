// Package perr defines the typed pipeline errors used across setgraph,
// each carrying whether the failure that produced it is worth
// retrying, per spec.md §7.
//
// Grounded on cmd/nup/metadata/musicbrainz.go's httpError type and its
// fatal() bool method, generalized from "HTTP status code decides
// retry vs. give up" to the full error-kind list the pipeline needs:
// HTTP, parse, robots, rate-limit, validation, and circuit-breaker
// failures.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error for retry-policy purposes.
type Kind string

const (
	KindHTTP            Kind = "http"
	KindParse           Kind = "parse"
	KindRobotsBlocked   Kind = "robots_blocked"
	KindRateLimited     Kind = "rate_limited"
	KindValidation      Kind = "validation"
	KindCircuitOpen     Kind = "circuit_open"
	KindNotFound        Kind = "not_found"
	KindTimeout         Kind = "timeout"
)

// Error is a pipeline error carrying a Kind and whether the operation
// that produced it should be retried.
type Error struct {
	Kind      Kind
	Retriable bool
	Source    string // source/service identifier, e.g. "spotify"; optional
	Op        string // short operation description, e.g. "fetch playlist"
	Err       error  // wrapped underlying error, if any
}

func (e *Error) Error() string {
	var where string
	switch {
	case e.Source != "" && e.Op != "":
		where = fmt.Sprintf("%s: %s", e.Source, e.Op)
	case e.Op != "":
		where = e.Op
	case e.Source != "":
		where = e.Source
	default:
		where = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", where, e.Err)
	}
	return where
}

func (e *Error) Unwrap() error { return e.Err }

// retriableKinds lists the kinds that default to retriable per
// spec.md §7 and §4.9 ("Terminal vs. retriable"): network/timeout/5xx
// and circuit-breaker-open are retriable; 4xx not-found and
// validation errors are terminal.
var retriableKinds = map[Kind]bool{
	KindHTTP:          true,
	KindTimeout:       true,
	KindCircuitOpen:   true,
	KindRateLimited:   true,
	KindRobotsBlocked: false,
	KindParse:         false,
	KindValidation:    false,
	KindNotFound:      false,
}

// New builds an Error for kind, defaulting Retriable per kind unless
// overridden by an explicit HTTPStatus-aware constructor below.
func New(kind Kind, source, op string, err error) *Error {
	return &Error{Kind: kind, Retriable: retriableKinds[kind], Source: source, Op: op, Err: err}
}

// FromHTTPStatus builds an Error from an HTTP response status code,
// mirroring httpError.fatal()'s distinction generalized to the wider
// error-kind taxonomy: 404 is terminal not-found, 429 is retriable
// rate-limiting, other 4xx are terminal validation-ish client errors,
// 5xx and anything else are retriable.
func FromHTTPStatus(source, op string, status int) *Error {
	switch {
	case status == 404:
		return New(KindNotFound, source, op, fmt.Errorf("http status %d", status))
	case status == 429:
		return New(KindRateLimited, source, op, fmt.Errorf("http status %d", status))
	case status >= 400 && status < 500:
		return New(KindValidation, source, op, fmt.Errorf("http status %d", status))
	default:
		return New(KindHTTP, source, op, fmt.Errorf("http status %d", status))
	}
}

// IsRetriable reports whether err (or any error it wraps) is a *Error
// marked retriable. A plain, unwrapped error is treated as
// non-retriable: only errors this package explicitly classified carry
// retry information.
func IsRetriable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retriable
	}
	return false
}
