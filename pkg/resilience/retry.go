package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig holds retry tuning.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultRetryConfig returns the documented defaults: 3 attempts,
// 1s base delay, 10s cap, factor 2.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Factor:      2,
	}
}

// RetryPredicate decides whether an error is worth another attempt.
type RetryPredicate func(error) bool

// Retrier wraps a call with bounded, jittered exponential backoff. It is
// composed outside the circuit breaker: a breaker rejection is treated as
// non-retryable by the default predicate.
type Retrier struct {
	cfg       RetryConfig
	retryable RetryPredicate
	logger    *zap.Logger

	// sleepFunc lets tests observe delays without waiting.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFloat lets tests pin the jitter.
	randFloat func() float64
	// onRetry mirrors attempts beyond the first into metrics.
	onRetry func(op string)
}

// OnRetry registers a callback invoked once per retry attempt (that is,
// every attempt after the first), with the operation name.
func (r *Retrier) OnRetry(fn func(op string)) {
	r.onRetry = fn
}

// NewRetrier creates a retrier with the given config. A nil predicate
// defaults to IsTransient.
func NewRetrier(cfg RetryConfig, retryable RetryPredicate, logger *zap.Logger) (*Retrier, error) {
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry: max attempts must be >= 1, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("retry: invalid delays base=%v max=%v", cfg.BaseDelay, cfg.MaxDelay)
	}
	if cfg.Factor < 1 {
		return nil, fmt.Errorf("retry: factor must be >= 1, got %v", cfg.Factor)
	}
	if retryable == nil {
		retryable = IsTransient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		cfg:       cfg,
		retryable: retryable,
		logger:    logger,
		sleepFunc: sleepCtx,
		randFloat: rand.Float64,
	}, nil
}

// Do runs fn up to MaxAttempts times, backing off between attempts. The
// last error is propagated unchanged once attempts are exhausted or the
// predicate declines to retry.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt - 1)
			r.logger.Debug("retrying after backoff",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := r.sleepFunc(ctx, delay); err != nil {
				return lastErr
			}
			if r.onRetry != nil {
				r.onRetry(op)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// delay computes min(maxDelay, base * factor^attempt) scaled by a random
// jitter in [0.5, 1.0).
func (r *Retrier) delay(attempt int) time.Duration {
	backoff := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Factor, float64(attempt))
	if backoff > float64(r.cfg.MaxDelay) {
		backoff = float64(r.cfg.MaxDelay)
	}
	jitter := 0.5 + r.randFloat()*0.5
	return time.Duration(backoff * jitter)
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
