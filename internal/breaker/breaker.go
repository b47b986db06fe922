// Package breaker implements the circuit breaker pattern used to shield the
// trading system from cascading failures in its dependencies.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the lifecycle phase of a circuit breaker.
type CircuitState int

const (
	// StateClosed - normal operation, calls pass through.
	StateClosed CircuitState = iota
	// StateOpen - calls are rejected until the open duration elapses.
	StateOpen
	// StateHalfOpen - a limited number of probe calls test recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitType classifies what a breaker protects. It is informational only
// and never alters the transition rules.
type CircuitType int

const (
	TypeGeneric CircuitType = iota
	TypeLatency
	TypeTradingRisk
)

func (t CircuitType) String() string {
	switch t {
	case TypeGeneric:
		return "generic"
	case TypeLatency:
		return "latency"
	case TypeTradingRisk:
		return "trading-risk"
	default:
		return "unknown"
	}
}

// Config holds the policy for a single circuit breaker. It is validated at
// construction and never mutated afterwards.
type Config struct {
	FailureThreshold int           // consecutive failures in closed state before opening
	SuccessThreshold int           // successes in half-open state before closing
	OpenDuration     time.Duration // how long to stay open before admitting probes
	MaxHalfOpenCalls int           // concurrent probes admitted while half-open
	LatencyThreshold time.Duration // optional: a slower successful call counts as a failure (0 disables)
	Type             CircuitType   // informational classification
}

// Validate checks the config. Non-positive thresholds or durations are
// construction-time errors, never call-time surprises.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker config: failure threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker config: success threshold must be positive, got %d", c.SuccessThreshold)
	}
	if c.OpenDuration <= 0 {
		return fmt.Errorf("breaker config: open duration must be positive, got %v", c.OpenDuration)
	}
	if c.MaxHalfOpenCalls < 1 {
		return fmt.Errorf("breaker config: max half-open calls must be at least 1, got %d", c.MaxHalfOpenCalls)
	}
	if c.LatencyThreshold < 0 {
		return fmt.Errorf("breaker config: latency threshold must not be negative, got %v", c.LatencyThreshold)
	}
	return nil
}

// CircuitBreaker protects a single resource. All state transitions are
// evaluated lazily on the caller's goroutine; there is no background timer.
// The mutex covers only the admit/record decision, never the protected call.
type CircuitBreaker struct {
	name     string
	cfg      Config
	logger   *zap.Logger
	onChange func(name string, from, to CircuitState)

	mu               sync.Mutex
	state            CircuitState
	failureCount     int
	successCount     int
	openedAt         time.Time
	halfOpenInFlight int
	// generation is bumped on every transition so a probe that outlives a
	// transition cannot release a slot of a later half-open phase.
	generation uint64
}

// New creates a circuit breaker with the given name and policy.
func New(name string, cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
	}, nil
}

// Name returns the breaker's registry name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Config returns a copy of the breaker's policy.
func (cb *CircuitBreaker) Config() Config { return cb.cfg }

// State returns the current lifecycle phase.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed right now. It never mutates the
// counters, but querying an expired open breaker moves it to half-open before
// admissibility is evaluated.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked(time.Now())

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpenInFlight < cb.cfg.MaxHalfOpenCalls
	default:
		return false
	}
}

// Call runs op under breaker protection. A rejected call returns a
// *CircuitOpenError without invoking op. An error from op is recorded as a
// failure and returned to the caller unchanged; the breaker never masks it.
// Half-open calls occupy a probe slot for the duration of op.
func (cb *CircuitBreaker) Call(op func() error) error {
	probe, gen, err := cb.admit(time.Now())
	if err != nil {
		return err
	}

	start := time.Now()
	opErr := op()
	elapsed := time.Since(start)

	failure := opErr != nil
	if !failure && cb.cfg.LatencyThreshold > 0 && elapsed > cb.cfg.LatencyThreshold {
		// The call succeeded but too slowly. The caller keeps its result;
		// the breaker counts the slowness against the resource.
		cb.logger.Warn("call exceeded latency threshold",
			zap.String("breaker", cb.name),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", cb.cfg.LatencyThreshold))
		failure = true
	}

	cb.settle(failure, probe, gen)
	return opErr
}

// RecordSuccess records an externally observed success, e.g. a risk metric
// back within bounds. It does not occupy a probe slot.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	cb.maybeHalfOpenLocked(now)
	cb.recordLocked(false, now)
}

// RecordFailure records an externally observed failure, e.g. a breached risk
// threshold. This is how a trading breaker trips without any failing call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	cb.maybeHalfOpenLocked(now)
	cb.recordLocked(true, now)
}

// Reset forces the breaker back to closed with zeroed counters. Used for
// operational recovery and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed, time.Now())
		return
	}
	cb.failureCount = 0
	cb.successCount = 0
}

// Stats is a read-only diagnostic view of a breaker.
type Stats struct {
	Name             string       `json:"name"`
	Type             CircuitType  `json:"-"`
	TypeName         string       `json:"type"`
	State            CircuitState `json:"-"`
	StateName        string       `json:"state"`
	FailureCount     int          `json:"failure_count"`
	SuccessCount     int          `json:"success_count"`
	HalfOpenInFlight int          `json:"half_open_in_flight"`
	OpenedAt         time.Time    `json:"opened_at"`
}

// Stats returns the breaker's current counters and state.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:             cb.name,
		Type:             cb.cfg.Type,
		TypeName:         cb.cfg.Type.String(),
		State:            cb.state,
		StateName:        cb.state.String(),
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		HalfOpenInFlight: cb.halfOpenInFlight,
		OpenedAt:         cb.openedAt,
	}
}

// admit decides whether a call may proceed, reserving a probe slot when the
// breaker is half-open.
func (cb *CircuitBreaker) admit(now time.Time) (probe bool, gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked(now)

	switch cb.state {
	case StateClosed:
		return false, cb.generation, nil
	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.cfg.MaxHalfOpenCalls {
			cb.halfOpenInFlight++
			return true, cb.generation, nil
		}
	}
	return false, 0, &CircuitOpenError{Name: cb.name, State: cb.state}
}

// settle records a call outcome, releasing the probe slot if one was held.
// Outcomes of calls admitted before a transition belong to that earlier phase
// and are dropped: a closed-phase straggler must not count toward a later
// half-open recovery.
func (cb *CircuitBreaker) settle(failure, probe bool, gen uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}
	if probe {
		cb.halfOpenInFlight--
	}
	cb.recordLocked(failure, time.Now())
}

// recordLocked applies an outcome to the state machine.
// TODO: support sliding-window failure counting as an alternative to the
// consecutive count for bursty dependencies.
func (cb *CircuitBreaker) recordLocked(failure bool, now time.Time) {
	switch cb.state {
	case StateClosed:
		if failure {
			cb.failureCount++
			if cb.failureCount >= cb.cfg.FailureThreshold {
				cb.transitionLocked(StateOpen, now)
			}
		} else {
			cb.failureCount = 0
		}
	case StateHalfOpen:
		if failure {
			cb.transitionLocked(StateOpen, now)
		} else {
			cb.successCount++
			if cb.successCount >= cb.cfg.SuccessThreshold {
				cb.transitionLocked(StateClosed, now)
			}
		}
	case StateOpen:
		// Outcomes that arrive while open (stale probes, synthetic signals)
		// do not move the machine; recovery is time-gated.
	}
}

// maybeHalfOpenLocked performs the lazy open to half-open transition once the
// open duration has elapsed.
func (cb *CircuitBreaker) maybeHalfOpenLocked(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.OpenDuration {
		cb.transitionLocked(StateHalfOpen, now)
	}
}

// transitionLocked is the single place state changes happen. Counters reset
// on every transition; openedAt is set exactly on entering open.
func (cb *CircuitBreaker) transitionLocked(to CircuitState, now time.Time) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.generation++
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenInFlight = 0
	if to == StateOpen {
		cb.openedAt = now
	}

	if to == StateOpen {
		cb.logger.Warn("circuit breaker tripped",
			zap.String("breaker", cb.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	} else {
		cb.logger.Info("circuit breaker state change",
			zap.String("breaker", cb.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	if cb.onChange != nil {
		// Listeners run off the lock so they may query the breaker freely.
		go cb.onChange(cb.name, from, to)
	}
}
