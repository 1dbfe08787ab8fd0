package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds how often and how long a remote call is attempted.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 2.
	MaxAttempts int

	// AttemptTimeout bounds each attempt. Zero leaves attempts bounded only
	// by the parent context.
	AttemptTimeout time.Duration

	// InitialBackoff is the delay before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 10s.
	MaxBackoff time.Duration

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = ±50%).
	JitterFraction float64

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig allows one retry after a one second backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    2,
		AttemptTimeout: time.Minute,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.25,
	}
}

// DoVal runs fn until it succeeds, returns a non-transient error, or the
// attempts are used up. An attempt that hits AttemptTimeout while the parent
// context is still live counts as transient. Cancelling ctx stops at once.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := attemptOnce(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(computeBackoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func attemptOnce[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		return val, NewTransientError(err, 0)
	}
	return val, err
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// computeBackoff doubles the delay per attempt up to MaxBackoff.
func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
