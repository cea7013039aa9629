// Package resilience provides reliability patterns for outbound pipeline calls.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker implements a circuit breaker for a single outbound target.
// It opens after maxFailures consecutive failures, rejects calls until the
// timeout elapses, then lets exactly one probe call through (half-open).
// A successful probe closes the circuit; a failed one reopens it.
type Breaker struct {
	name        string
	mu          sync.Mutex
	state       state
	failures    int
	probing     bool
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
	onChange    func(name, from, to string)
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return NewNamedBreaker("", maxFailures, timeout)
}

// NewNamedBreaker is NewBreaker with a target name included in rejections.
func NewNamedBreaker(name string, maxFailures int, timeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// OnStateChange registers a callback invoked outside the lock whenever the
// circuit changes state.
func (b *Breaker) OnStateChange(fn func(name, from, to string)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// State returns the current state as "closed", "open" or "half-open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Execute runs fn if the circuit allows it.
// Returns an error wrapping ErrCircuitOpen if the call is rejected.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		if b.name == "" {
			return ErrCircuitOpen
		}
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}

	err := fn()

	b.mu.Lock()
	from := b.state
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	to, notify := b.state, b.onChange
	b.mu.Unlock()

	if from != to && notify != nil {
		notify(b.name, from.String(), to.String())
	}
	return err
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = stateHalfOpen
			b.probing = true
			return true
		}
		return false
	case stateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	b.probing = false
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.probing = false
	b.state = stateClosed
}

// Set hands out one Breaker per target name, created on first use with
// shared settings. It is safe for concurrent use.
type Set struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	timeout     time.Duration
	onChange    func(name, from, to string)
}

// NewSet creates an empty breaker set.
func NewSet(maxFailures int, timeout time.Duration) *Set {
	return &Set{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
	}
}

// OnStateChange registers a callback for every breaker created afterwards.
func (s *Set) OnStateChange(fn func(name, from, to string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Get returns the breaker for name, creating it if needed. A nil Set
// returns nil, which Do treats as "no breaker".
func (s *Set) Get(name string) *Breaker {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = NewNamedBreaker(name, s.maxFailures, s.timeout)
		b.onChange = s.onChange
		s.breakers[name] = b
	}
	return b
}

// Do runs fn through the breaker for name, or directly when s is nil.
func (s *Set) Do(name string, fn func() error) error {
	b := s.Get(name)
	if b == nil {
		return fn()
	}
	return b.Execute(fn)
}
