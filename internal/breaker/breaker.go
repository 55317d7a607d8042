package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call and Do when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// State is the current position of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

// Settings are the tunables for one breaker. Zero fields fall back to
// the package defaults.
type Settings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
	defaultHalfOpenMaxCalls = 3
)

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = defaultFailureThreshold
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = defaultRecoveryTimeout
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	return s
}

// Breaker is a three-state circuit breaker. CanExecute, RecordSuccess and
// RecordFailure are the only operations that change its state; everything
// else is built on top of them.
type Breaker struct {
	name     string
	settings Settings

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCalls int
	halfOpenOK    int
}

// New returns a closed breaker with the given name and settings.
func New(name string, s Settings) *Breaker {
	return &Breaker{
		name:     name,
		settings: s.withDefaults(),
		state:    StateClosed,
	}
}

// Name returns the registry name the breaker was created under.
func (b *Breaker) Name() string { return b.name }

// State reports the effective state. An open breaker whose recovery
// timeout has elapsed reports half_open; the transition itself is
// committed by the next mutating call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.settings.RecoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// maybeHalfOpen commits the open to half_open transition once the
// recovery timeout has elapsed, resetting the probe counters. Caller
// holds b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.settings.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenOK = 0
	}
}

// Failures returns the consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// CanExecute reports whether a call may proceed. In half_open it admits
// at most HalfOpenMaxCalls probes.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenCalls >= b.settings.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful call. In closed it resets the
// consecutive-failure count; in half_open it counts toward closing the
// breaker once HalfOpenMaxCalls successes have accumulated.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.settings.HalfOpenMaxCalls {
			b.state = StateClosed
			b.failures = 0
			b.halfOpenCalls = 0
			b.halfOpenOK = 0
		}
	}
}

// RecordFailure notes a failed call. In closed it opens the breaker once
// FailureThreshold consecutive failures accumulate; in half_open a single
// failure reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

// open transitions to StateOpen. Caller holds b.mu.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.halfOpenCalls = 0
	b.halfOpenOK = 0
}

// Reset returns the breaker to a pristine closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenCalls = 0
	b.halfOpenOK = 0
}

// Call runs fn under breaker protection and records the outcome.
// When the breaker rejects the call it returns ErrOpen without
// invoking fn.
func (b *Breaker) Call(fn func() error) error {
	if !b.CanExecute() {
		return ErrOpen
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// Do runs fn under breaker protection, returning the zero value and
// ErrOpen when the call is rejected.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if !b.CanExecute() {
		return zero, ErrOpen
	}
	v, err := fn()
	if err != nil {
		b.RecordFailure()
		return v, err
	}
	b.RecordSuccess()
	return v, nil
}

// DoOr is Do with a fallback value returned instead of ErrOpen when the
// breaker rejects the call.
func DoOr[T any](b *Breaker, fallback T, fn func() (T, error)) (T, error) {
	v, err := Do(b, fn)
	if errors.Is(err, ErrOpen) {
		return fallback, nil
	}
	return v, err
}
