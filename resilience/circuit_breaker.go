package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Execute when the circuit is open and
// rejecting calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// State is the circuit breaker's current mode.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrorClassifier decides whether an error should count toward the
// breaker's failure threshold. Configuration/validation errors should not —
// they indicate a caller bug, not upstream instability.
type ErrorClassifier func(error) bool

// AlwaysCounts treats every non-nil error as a failure.
func AlwaysCounts(err error) bool { return err != nil }

// Config configures a CircuitBreaker.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SleepWindow      time.Duration // how long to stay open before probing
	HalfOpenProbes   int           // requests allowed through while half-open
	Classifier       ErrorClassifier
}

// DefaultConfig returns sane production defaults, modeled on the values the
// teacher framework ships (50% error rate over a minimum volume, 30s sleep
// window) but simplified to a consecutive-failure counter since per-source
// integration calls are low-volume relative to the teacher's agent-to-agent
// traffic.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenProbes:   1,
		Classifier:       AlwaysCounts,
	}
}

// CircuitBreaker is a per-integration failure gate: after FailureThreshold
// consecutive classified failures it opens and rejects calls for
// SleepWindow, then allows HalfOpenProbes trial calls before closing again.
type CircuitBreaker struct {
	cfg Config

	mu             sync.Mutex
	state          State
	consecutiveErr int
	openedAt       time.Time
	halfOpenInUse  int32
}

// New creates a CircuitBreaker in the closed state.
func New(cfg Config) *CircuitBreaker {
	if cfg.Classifier == nil {
		cfg.Classifier = AlwaysCounts
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning open -> half-open
// once SleepWindow has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.SleepWindow {
			cb.state = StateHalfOpen
			atomic.StoreInt32(&cb.halfOpenInUse, 0)
			return cb.tryHalfOpenSlot()
		}
		return false
	case StateHalfOpen:
		return cb.tryHalfOpenSlot()
	default:
		return true
	}
}

func (cb *CircuitBreaker) tryHalfOpenSlot() bool {
	for {
		cur := atomic.LoadInt32(&cb.halfOpenInUse)
		if int(cur) >= cb.cfg.HalfOpenProbes {
			return false
		}
		if atomic.CompareAndSwapInt32(&cb.halfOpenInUse, cur, cur+1) {
			return true
		}
	}
}

// RecordResult reports the outcome of a call that Allow() let through.
func (cb *CircuitBreaker) RecordResult(err error) {
	if err != nil && !cb.cfg.Classifier(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutiveErr = 0
		if cb.state != StateClosed {
			cb.state = StateClosed
		}
		return
	}

	cb.consecutiveErr++
	if cb.state == StateHalfOpen || cb.consecutiveErr >= cb.cfg.FailureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

// State returns the breaker's current state (for status reporting).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.RecordResult(err)
	return err
}
