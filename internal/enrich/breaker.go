// Package enrich implements C9, the enrichment waterfall: an ordered
// pipeline of external lookups, each guarded by its own circuit
// breaker, that progressively fills in a silver track's metadata and
// produces a confidence-scored EnrichmentStatus, per spec.md §4.9.
package enrich

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/corvyn/setgraph/internal/perr"
)

// BreakerConfig configures one service's circuit breaker, per
// spec.md §4.9: N consecutive failures opens it; it blocks calls for
// a recovery timeout, then half-opens to allow probe calls and closes
// after M consecutive successes.
type BreakerConfig struct {
	ConsecutiveFailuresToOpen uint32
	RecoveryTimeout           time.Duration
	ConsecutiveSuccessesToClose uint32
}

// DefaultBreakerConfig is a conservative default for external metadata
// APIs: five consecutive failures opens the breaker, it probes again
// after a minute, and two consecutive successes close it.
var DefaultBreakerConfig = BreakerConfig{
	ConsecutiveFailuresToOpen:   5,
	RecoveryTimeout:             time.Minute,
	ConsecutiveSuccessesToClose: 2,
}

// breaker wraps a gobreaker.CircuitBreaker for one external service,
// translating its open/half-open rejection into a retriable
// *perr.Error per spec.md §4.9 ("Breaker-open failures are marked
// is_retriable = true").
type breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

func newBreaker(name string, cfg BreakerConfig) *breaker {
	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailuresToOpen
		},
		Timeout:     cfg.RecoveryTimeout,
		MaxRequests: cfg.ConsecutiveSuccessesToClose,
	}
	return &breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// call runs fn through the breaker, translating open-circuit
// rejections into a retriable circuit-open error.
func (b *breaker) call(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, perr.New(perr.KindCircuitOpen, b.name, "circuit open", err)
		}
		return nil, err
	}
	return out, nil
}

// state reports the breaker's current state, for observability.
func (b *breaker) state() gobreaker.State { return b.cb.State() }
