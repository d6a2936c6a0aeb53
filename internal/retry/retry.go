// Package retry provides exponential-backoff-with-jitter retry for
// the connect-time operations in store and coordination: dialing
// Postgres and Redis at process startup, when the database or cache
// may not be reachable yet (container start-up ordering, rolling
// restarts).
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("retry: max retries exceeded")
	ErrContextCanceled    = errors.New("retry: context canceled")
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// DefaultConfig returns the backoff schedule New uses for a nil Config.
// A zero-valued Config gets the same schedule except JitterFactor,
// which stays 0 (no jitter).
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is a unit of work that may be retried.
type Operation func(ctx context.Context) error

// RetryableError marks an error as eligible for another attempt.
// Do already retries any non-permanent error, so this is informational
// rather than load-bearing, matching how the source monorepo uses it.
type RetryableError struct{ err error }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{err: err}
}

func (e *RetryableError) Error() string { return e.err.Error() }
func (e *RetryableError) Unwrap() error { return e.err }

// PermanentError marks an error as not worth retrying; Do returns it
// immediately without consuming further attempts.
type PermanentError struct{ err error }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{err: err}
}

func (e *PermanentError) Error() string { return e.err.Error() }
func (e *PermanentError) Unwrap() error { return e.err }

// Result reports the outcome of a Do call.
type Result struct {
	Err           error
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

// RetryCallback is invoked before each retry sleep, for logging.
type RetryCallback func(attempt int, err error, nextInterval time.Duration)

// Retrier runs an Operation with exponential backoff and jitter.
type Retrier struct {
	config *Config
}

// New builds a Retrier, filling zero-valued interval and multiplier
// fields from DefaultConfig. MaxRetries is filled only when it and
// those three fields are all zero; JitterFactor is never filled.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	d := DefaultConfig()
	if config.MaxRetries == 0 && config.InitialInterval == 0 && config.MaxInterval == 0 && config.Multiplier == 0 {
		config.MaxRetries = d.MaxRetries
	}
	if config.InitialInterval == 0 {
		config.InitialInterval = d.InitialInterval
	}
	if config.MaxInterval == 0 {
		config.MaxInterval = d.MaxInterval
	}
	if config.Multiplier == 0 {
		config.Multiplier = d.Multiplier
	}
	return &Retrier{config: config}
}

// Do runs op, retrying on error until it succeeds, a PermanentError is
// returned, MaxRetries is exhausted, or ctx is canceled.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

// DoWithCallback is Do with a callback invoked before each retry sleep.
func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, callback RetryCallback) *Result {
	start := time.Now()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &Result{
				Err:           ErrContextCanceled,
				Attempts:      attempt,
				TotalDuration: time.Since(start),
				LastError:     lastErr,
			}
		}

		err := op(ctx)
		if err == nil {
			return &Result{Attempts: attempt + 1, TotalDuration: time.Since(start)}
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return &Result{Err: perm.Unwrap(), Attempts: attempt + 1, TotalDuration: time.Since(start)}
		}

		lastErr = err

		if attempt >= r.config.MaxRetries {
			return &Result{
				Err:           ErrMaxRetriesExceeded,
				Attempts:      attempt + 1,
				TotalDuration: time.Since(start),
				LastError:     lastErr,
			}
		}

		interval := r.calculateInterval(attempt)
		if callback != nil {
			callback(attempt, err, interval)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Result{
				Err:           ErrContextCanceled,
				Attempts:      attempt + 1,
				TotalDuration: time.Since(start),
				LastError:     lastErr,
			}
		case <-timer.C:
		}
	}
}

func (r *Retrier) calculateInterval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))
	if max := float64(r.config.MaxInterval); interval > max {
		interval = max
	}
	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}

// Do is a package-level convenience wrapper around New(config).Do.
func Do(ctx context.Context, config *Config, op Operation) *Result {
	return New(config).Do(ctx, op)
}

// WithRetry wraps op with DefaultConfig retry semantics.
func WithRetry(op Operation) Operation {
	return WithRetryConfig(DefaultConfig(), op)
}

// WithRetryConfig wraps op with the given retry config.
func WithRetryConfig(config *Config, op Operation) Operation {
	return func(ctx context.Context) error {
		result := New(config).Do(ctx, op)
		if result.Err != nil {
			if errors.Is(result.Err, ErrMaxRetriesExceeded) {
				return result.LastError
			}
			return result.Err
		}
		return nil
	}
}
