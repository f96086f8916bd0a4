package gateway

import (
	"sync"
	"time"
)

type BreakerState int

const (
	// StateClosed passes requests through and counts consecutive failures.
	StateClosed BreakerState = iota
	// StateOpen rejects every request until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a single trial request to probe recovery.
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

// Breaker is a per-target circuit breaker. Callers ask Allow before a
// downstream call and must Report the outcome of every call that Allow
// permitted, timeouts included. All state lives behind one mutex, so
// the admit-one-trial rule holds under concurrency.
type Breaker struct {
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	failureThreshold int
	resetTimeout     time.Duration

	// now is replaceable in tests to step through the reset window.
	now func() time.Time
}

func NewBreaker(failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a downstream call may be attempted. In Open it
// also performs the timed transition to HalfOpen: the first caller after
// the reset timeout becomes the trial and everyone else keeps getting
// rejected until that trial reports.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.resetTimeout {
			b.state = StateHalfOpen
			b.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if !b.trialInFlight {
			b.trialInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

// Report records the outcome of a permitted call.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.consecutiveFailures = 0
			return
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.trialInFlight = false
		if success {
			b.state = StateClosed
			b.consecutiveFailures = 0
			return
		}
		b.state = StateOpen
		b.openedAt = b.now()
	case StateOpen:
		// A call admitted before the trip can finish after it. The
		// breaker already decided; late outcomes change nothing.
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
