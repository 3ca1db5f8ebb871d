package sqlite

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting store calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips after a run of consecutive store failures and
// rejects calls until a cooldown elapses, then admits a single probe.
// A successful probe closes the breaker; a failed one restarts the
// cooldown.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	consecutive int
	threshold   int
	cooldown    time.Duration
	openedAt    time.Time
	clock       func() time.Time // swapped out in tests
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Execute runs fn unless the breaker is rejecting calls, and feeds the
// outcome back into the trip accounting.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(err, probe)
	return err
}

// admit decides whether a call may run and reports whether it is the
// half-open probe. The probe slot is claimed under the lock, so only one
// caller per cooldown gets it.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.clock().Sub(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		return true, nil
	default:
		// Half-open: a probe is already in flight.
		return false, ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) observe(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		if probe {
			cb.state = StateClosed
		}
		cb.consecutive = 0
		return
	}
	if probe {
		cb.state = StateOpen
		cb.openedAt = cb.clock()
		return
	}
	cb.consecutive++
	if cb.consecutive >= cb.threshold {
		cb.state = StateOpen
		cb.openedAt = cb.clock()
	}
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
