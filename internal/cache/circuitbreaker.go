package cache

import (
	"errors"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// ErrCircuitOpen is returned by execute (and so by Store.exec) when the breaker has tripped and
// the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("cache: circuit breaker is open")

type circuitBreaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	OnStateChange func(from, to string)
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

func (cb *circuitBreaker) execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case stateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(stateHalfOpen)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == stateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(stateOpen)
		}
		return err
	}
	if cb.state == stateHalfOpen {
		cb.transition(stateClosed)
	}
	cb.failures = 0
	return nil
}

func (cb *circuitBreaker) transition(to breakerState) {
	from := cb.state
	cb.state = to
	if to == stateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(stateName(from), stateName(to))
	}
}

func stateName(s breakerState) string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
