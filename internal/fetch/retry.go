package fetch

import (
	"context"
	"math/rand"
	"time"
)

// Retry defaults
const (
	DefaultMaxAttempts = 7
	DefaultMaxDelay    = 5 * time.Second
)

// Operation is one attemptable unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// RouteProvider re-acquires a fresh outbound route (proxy, egress identity)
// before an attempt. Useful when the remote end rate-limits per route.
type RouteProvider interface {
	Refresh(ctx context.Context) error
}

// Retrier runs an operation with exponential backoff and jitter. The first
// attempt fires immediately; after a failure the delay doubles from one
// second up to MaxDelay, plus a uniform [0,1) second of jitter. The final
// attempt's failure is returned as-is.
//
// The retrier blocks its caller for the cumulative duration of all attempts
// and imposes no timeout of its own; a caller that needs cancellation wraps
// the call with its own deadline.
type Retrier[T any] struct {
	MaxAttempts int
	MaxDelay    time.Duration

	// Routes, when set, is refreshed before every attempt.
	Routes RouteProvider

	// Sleep and Rand exist for tests; nil means time.Sleep / rand.Float64.
	Sleep func(time.Duration)
	Rand  func() float64
}

func NewRetrier[T any](routes RouteProvider) *Retrier[T] {
	return &Retrier[T]{
		MaxAttempts: DefaultMaxAttempts,
		MaxDelay:    DefaultMaxDelay,
		Routes:      routes,
	}
}

// Do runs op until it succeeds or MaxAttempts is exhausted.
func (r *Retrier[T]) Do(ctx context.Context, op Operation[T]) (T, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	random := r.Rand
	if random == nil {
		random = rand.Float64
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.Routes != nil {
			_ = r.Routes.Refresh(ctx)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(1<<(attempt-1)) * time.Second
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(random() * float64(time.Second))
		sleep(delay + jitter)
	}

	var zero T
	return zero, lastErr
}
