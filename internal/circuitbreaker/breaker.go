package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker is open")

// Stops calling a failing dependency for a cooldown period. Closed passes
// everything through; after FailureThreshold consecutive terminal failures
// the circuit opens and rejects calls until Cooldown has elapsed since the
// last failure, then exactly one trial call is let through.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	trialInFlight   bool

	failureThreshold int
	cooldown         time.Duration

	now func() time.Time
}

type Config struct {
	FailureThreshold int           // Default: 5
	Cooldown         time.Duration // Default: 60 seconds
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}

	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		lastStateChange:  time.Now(),
		now:              time.Now,
	}
}

// Reports whether a call may proceed. In the open state the call is
// rejected until the cooldown elapses; the first call after that becomes
// the half-open trial.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.cooldown {
			cb.setState(StateHalfOpen)
			cb.trialInFlight = true
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		// Only one trial at a time
		if cb.trialInFlight {
			return ErrOpen
		}
		cb.trialInFlight = true
		return nil
	}

	return nil
}

// Records a terminal success and resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.trialInFlight = false
	if cb.state != StateClosed {
		cb.setState(StateClosed)
	}
}

// Records a terminal failure. A failed half-open trial reopens the circuit
// and restarts the cooldown clock.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()
	cb.trialInFlight = false

	if cb.state == StateHalfOpen {
		cb.setState(StateOpen)
		return
	}

	if cb.failureCount >= cb.failureThreshold {
		cb.setState(StateOpen)
	}
}

// Call runs fn under breaker protection, counting any error as one terminal
// failure.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state != newState {
		cb.state = newState
		cb.lastStateChange = cb.now()
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Manually closes the circuit and clears the failure counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.trialInFlight = false
	cb.lastStateChange = cb.now()
}

type Metrics struct {
	State           State
	FailureCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Metrics{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}
