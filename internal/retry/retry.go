// Package retry runs an operation under a bounded, randomized exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how often and how long to retry.
type Policy struct {
	// MaxAttempts includes the first call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RandomizationFactor spreads each delay over [d*(1-f), d*(1+f)].
	RandomizationFactor float64
	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries nothing.
	Retryable func(error) bool
}

// DefaultPolicy is six attempts, 1s growing to at most 60s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         6,
		InitialDelay:        time.Second,
		MaxDelay:            time.Minute,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// NewBackOff builds the exponential schedule for p.
func NewBackOff(p Policy) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialDelay
	bo.MaxInterval = p.MaxDelay
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = p.RandomizationFactor
	return bo
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy     Policy
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	timer      backoff.Timer
	notify     func(err error, next time.Duration)
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithBackOff replaces the delay schedule; factory is called once per Do.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(r *Retrier) { r.newBackOff = factory }
}

// WithTimer replaces the timer used to wait between attempts. The timer is
// not safe for concurrent Do calls.
func WithTimer(timer backoff.Timer) Option {
	return func(r *Retrier) { r.timer = timer }
}

// WithNotify registers a callback run before each wait.
func WithNotify(notify func(err error, next time.Duration)) Option {
	return func(r *Retrier) { r.notify = notify }
}

// New builds a Retrier; a non-positive MaxAttempts becomes 1.
func New(policy Policy, logger *slog.Logger, opts ...Option) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	if policy.RandomizationFactor < 0 {
		policy.RandomizationFactor = 0
	}
	if policy.RandomizationFactor > 1 {
		policy.RandomizationFactor = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Retrier{policy: policy, logger: logger}
	r.newBackOff = func() backoff.BackOff { return NewBackOff(r.policy) }
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// attempt budget runs out. It returns the number of attempts made and the
// last error. Attempts are strictly sequential.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	attempts := 0
	operation := func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attempts++
		err := op(ctx, attempts)
		if err == nil {
			return struct{}{}, nil
		}
		if r.policy.Retryable == nil || !r.policy.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("retry backoff wait",
				"attempt", attempts,
				"retry_delay_ms", next.Milliseconds(),
				"error", err)
			if r.notify != nil {
				r.notify(err, next)
			}
		}),
	}
	if r.timer != nil {
		opts = append(opts, backoff.WithTimer(r.timer))
	}

	_, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		if attempts > 1 {
			r.logger.Info("operation succeeded after retry", "attempt", attempts)
		}
		return attempts, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return attempts, fmt.Errorf("retry cancelled: %w", err)
	}

	r.logger.Warn("operation failed permanently",
		"attempt", attempts,
		"retryable", r.policy.Retryable != nil && r.policy.Retryable(err),
		"error", err)
	return attempts, err
}
