package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of a circuit breaker
type CircuitState int

const (
	// StateClosed means calls pass through normally.
	StateClosed CircuitState = iota
	// StateOpen means calls are rejected immediately without contacting
	// the dependency.
	StateOpen
	// StateHalfOpen means exactly one probe call is allowed through to
	// test whether the dependency has recovered.
	StateHalfOpen
)

// String returns a human-readable representation of the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Must be >= 1.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before the next call
	// is allowed through as a half-open probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the documented defaults: 5 failures, 60s cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 60 * time.Second}
}

// CircuitBreaker is a three-state failure-isolation gate wrapping calls to
// one unreliable dependency. Each dependency gets its own instance so that
// failure of one does not open another's circuit.
type CircuitBreaker struct {
	dependency string
	cfg        BreakerConfig
	logger     *zap.Logger
	onChange   func(dependency string, from, to CircuitState)

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool

	// nowFunc lets tests inject a clock.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a breaker for the named dependency.
func NewCircuitBreaker(dependency string, cfg BreakerConfig, logger *zap.Logger) (*CircuitBreaker, error) {
	if dependency == "" {
		return nil, fmt.Errorf("circuit breaker: dependency name must not be empty")
	}
	if cfg.FailureThreshold < 1 {
		return nil, fmt.Errorf("circuit breaker: failure threshold must be >= 1, got %d", cfg.FailureThreshold)
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("circuit breaker: cooldown must be > 0, got %v", cfg.Cooldown)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		dependency: dependency,
		cfg:        cfg,
		logger:     logger,
		state:      StateClosed,
		nowFunc:    time.Now,
	}, nil
}

// OnStateChange registers a callback invoked on every state transition,
// used to mirror transitions into metrics. The callback runs with the
// breaker's lock held and must not call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn func(dependency string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// Dependency returns the name of the wrapped dependency.
func (cb *CircuitBreaker) Dependency() string { return cb.dependency }

// State returns the breaker's current state, applying the time-based
// open -> half-open transition first.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Execute runs fn through the breaker. In the open state the call is
// rejected with a CircuitOpenError without contacting the dependency.
// In the half-open state at most one probe runs; concurrent callers are
// rejected until the probe resolves.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.mu.Lock()
	state := cb.currentStateLocked()

	switch state {
	case StateOpen:
		cb.mu.Unlock()
		return &CircuitOpenError{Dependency: cb.dependency}
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return &CircuitOpenError{Dependency: cb.dependency}
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn(ctx)

	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// currentStateLocked evaluates the state, promoting open to half-open once
// the cooldown has elapsed. Caller must hold cb.mu.
func (cb *CircuitBreaker) currentStateLocked() CircuitState {
	if cb.state == StateOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.transitionLocked(StateHalfOpen)
		cb.probing = false
	}
	return cb.state
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++

	if cb.state == StateHalfOpen {
		// Probe failed: reopen and restart the cooldown.
		cb.probing = false
		cb.openedAt = cb.nowFunc()
		cb.transitionLocked(StateOpen)
		return
	}

	if cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.nowFunc()
		cb.transitionLocked(StateOpen)
	}
}

// transitionLocked changes state and logs the transition. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(next CircuitState) {
	from := cb.state
	cb.state = next
	cb.logger.Info("circuit breaker state change",
		zap.String("dependency", cb.dependency),
		zap.String("from", from.String()),
		zap.String("state", next.String()),
		zap.Int("consecutive_failures", cb.failures),
	)
	if cb.onChange != nil {
		cb.onChange(cb.dependency, from, next)
	}
}

// Registry hands out one breaker per dependency name, so unrelated
// dependencies never share failure state.
type Registry struct {
	cfg    BreakerConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	onChange func(dependency string, from, to CircuitState)
}

// NewRegistry creates a registry whose breakers all share cfg.
func NewRegistry(cfg BreakerConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// OnStateChange registers a transition callback applied to every breaker
// the registry has created or will create.
func (r *Registry) OnStateChange(fn func(dependency string, from, to CircuitState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
	for _, cb := range r.breakers {
		cb.OnStateChange(fn)
	}
}

// Get returns the breaker for the named dependency, creating it on first use.
func (r *Registry) Get(dependency string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[dependency]; ok {
		return cb
	}
	cb, err := NewCircuitBreaker(dependency, r.cfg, r.logger)
	if err != nil {
		// Config is validated at registry construction call sites; an
		// empty dependency name is the only remaining failure mode.
		panic(fmt.Sprintf("resilience: invalid breaker for %q: %v", dependency, err))
	}
	if r.onChange != nil {
		cb.OnStateChange(r.onChange)
	}
	r.breakers[dependency] = cb
	return cb
}
