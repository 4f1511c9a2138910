package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRetrier(t *testing.T, cfg RetryConfig) (*Retrier, *[]time.Duration) {
	t.Helper()

	r, err := NewRetrier(cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetrier failed: %v", err)
	}

	var delays []time.Duration
	r.sleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	r.randFloat = func() float64 { return 1.0 } // pin jitter to the upper bound
	return r, &delays
}

func TestRetryTransientUpToMaxAttempts(t *testing.T) {
	r, delays := newTestRetrier(t, DefaultRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), "fetch", func(ctx context.Context) error {
		attempts++
		return Transient("fetch", errBoom)
	})

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected last error propagated unchanged, got %v", err)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*delays))
	}
}

func TestRetryDelaysNonDecreasingAndCapped(t *testing.T) {
	r, delays := newTestRetrier(t, RetryConfig{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
		Factor:      2,
	})

	r.Do(context.Background(), "fetch", func(ctx context.Context) error {
		return Transient("fetch", errBoom)
	})

	if len(*delays) != 5 {
		t.Fatalf("expected 5 sleeps, got %d", len(*delays))
	}
	for i := 1; i < len(*delays); i++ {
		if (*delays)[i] < (*delays)[i-1] {
			t.Errorf("delay %d (%v) decreased from %v", i, (*delays)[i], (*delays)[i-1])
		}
	}
	for i, d := range *delays {
		if d > 4*time.Second {
			t.Errorf("delay %d (%v) exceeds max delay", i, d)
		}
	}
	// With jitter pinned to 1.0: 1s, 2s, 4s, 4s, 4s.
	if (*delays)[0] != time.Second || (*delays)[2] != 4*time.Second {
		t.Errorf("unexpected backoff progression: %v", *delays)
	}
}

func TestRetryNonRetryableSingleAttempt(t *testing.T) {
	r, delays := newTestRetrier(t, DefaultRetryConfig())

	permanent := errors.New("validation failed")
	attempts := 0
	err := r.Do(context.Background(), "fetch", func(ctx context.Context) error {
		attempts++
		return permanent
	})

	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for non-retryable error, got %d", attempts)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("expected original error, got %v", err)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no sleeps, got %v", *delays)
	}
}

func TestRetryCircuitOpenNotRetried(t *testing.T) {
	r, _ := newTestRetrier(t, DefaultRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), "analyze", func(ctx context.Context) error {
		attempts++
		return &CircuitOpenError{Dependency: "ai-analyzer"}
	})

	if attempts != 1 {
		t.Errorf("expected breaker rejection not retried, got %d attempts", attempts)
	}
	if !IsCircuitOpen(err) {
		t.Errorf("expected circuit open error, got %v", err)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	r, _ := newTestRetrier(t, DefaultRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), "fetch", func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return Transient("fetch", errBoom)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	r, err := NewRetrier(DefaultRetryConfig(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetrier failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	result := r.Do(ctx, "fetch", func(ctx context.Context) error {
		attempts++
		cancel() // cancel during the first attempt's failure
		return Transient("fetch", errBoom)
	})

	if attempts != 1 {
		t.Errorf("expected no further attempts after cancellation, got %d", attempts)
	}
	if !errors.Is(result, errBoom) {
		t.Errorf("expected last attempt error, got %v", result)
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped transient", Transient("op", errBoom), true},
		{"deadline", context.DeadlineExceeded, true},
		{"circuit open", &CircuitOpenError{Dependency: "d"}, false},
		{"schema violation", &SchemaViolationError{Reason: "bad json"}, false},
		{"plain error", errBoom, false},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryNotifiesEachRetryAttempt(t *testing.T) {
	r, _ := newTestRetrier(t, DefaultRetryConfig())

	var notified []string
	r.OnRetry(func(op string) { notified = append(notified, op) })

	attempts := 0
	r.Do(context.Background(), "fetch", func(ctx context.Context) error {
		attempts++
		return Transient("fetch", errBoom)
	})

	// One notification per attempt beyond the first.
	if attempts != 3 || len(notified) != 2 {
		t.Fatalf("attempts = %d, notifications = %d, want 3 and 2", attempts, len(notified))
	}
	for _, op := range notified {
		if op != "fetch" {
			t.Errorf("notified op = %q, want fetch", op)
		}
	}
}
