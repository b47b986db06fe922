package breaker

import (
	"errors"
	"fmt"
)

// CircuitOpenError signals that a call was rejected without executing the
// protected operation: the breaker is open, or half-open at its probe cap.
// It is always recoverable by the caller (retry later, or fall back).
type CircuitOpenError struct {
	Name  string
	State CircuitState
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is %s: call rejected", e.Name, e.State)
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	var e *CircuitOpenError
	return errors.As(err, &e)
}

// NotFoundError signals a manager lookup for a name that was never registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("circuit breaker %s not found", e.Name)
}

// IsNotFound reports whether err is a failed manager lookup.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
