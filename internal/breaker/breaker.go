// Package breaker implements a circuit breaker (component G) guarding a
// single outbound dependency: a rolling failure counter that opens the
// circuit after a configurable threshold and probes for recovery after a
// cooldown.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the breaker's three states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Call when the breaker rejects a call because it is
// in the Open state.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a single-call-site circuit breaker. It requires no external
// synchronization beyond its own internal mutex.
type Breaker struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	openedAt            time.Time

	failureThreshold int
	resetTimeout     time.Duration
	clock            func() time.Time
}

// Option configures a Breaker at construction.
type Option func(*Breaker)

// WithClock overrides the time source (for tests).
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) { b.clock = clock }
}

// New creates a Breaker that opens after failureThreshold consecutive
// failures and allows a recovery probe after resetTimeout has elapsed.
func New(failureThreshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call runs fn if the breaker permits it, updating state based on the
// outcome. If the breaker is Open and the reset timeout has not yet
// elapsed, fn is not invoked and ErrOpen is returned.
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.recordResult(err)
	return err
}

// allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once the reset timeout has elapsed. The call that makes that transition is
// the single probe; further calls are rejected until its result is recorded.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return false
	case Open:
		if b.clock().Sub(b.openedAt) >= b.resetTimeout {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveFailures = 0
		b.state = Closed
		return
	}

	b.consecutiveFailures++
	if b.state == HalfOpen || b.consecutiveFailures >= b.failureThreshold {
		b.state = Open
		b.openedAt = b.clock()
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
