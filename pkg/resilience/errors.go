package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrCircuitOpen is the sentinel matched by errors.Is for breaker
// rejections.
var ErrCircuitOpen = errors.New("circuit breaker open")

// TransientError marks a network/timeout-class failure that is safe to
// retry against the same dependency.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// CircuitOpenError is returned when a call is rejected without contacting
// the dependency because its breaker is open.
type CircuitOpenError struct {
	Dependency string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for dependency %q", e.Dependency)
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// SchemaViolationError marks a malformed or schema-violating AI response.
// It is excluded from IsTransient; callers that want to re-sample the
// model compose IsSchemaViolation into their retry predicate and degrade
// to rule-based analysis once attempts run out.
type SchemaViolationError struct {
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("response violates schema: %s", e.Reason)
}

// Transient wraps err as a TransientError for the named operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err should be retried. Breaker rejections
// are explicitly non-retryable so an already-open breaker is not hammered.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	// Timeouts and deadline expiry from the transport layer count as
	// transient even when not wrapped at the call site.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsSchemaViolation reports whether err is a malformed-response failure.
func IsSchemaViolation(err error) bool {
	var se *SchemaViolationError
	return errors.As(err, &se)
}
