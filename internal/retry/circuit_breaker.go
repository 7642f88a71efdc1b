package retry

import (
	"fmt"
	"sync"
	"time"

	apperr "salvo/internal/errors"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State represents the circuit breaker's operational state.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	// the circuit (default 5).
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before moving to
	// half-open (default 30s).
	ResetTimeout time.Duration
	// HalfOpenMax is the number of consecutive successes in half-open
	// state required to close the circuit (default 2).
	HalfOpenMax int
	// OnStateChange runs under the lock on every transition.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker stops calling a failing dependency after a run of
// consecutive failures, then lets probes through once ResetTimeout
// has passed.  The registry uses one so a dead Redis costs each match
// event a map lookup instead of a network timeout.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	lastFailure   time.Time
	onStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	cb := &CircuitBreaker{
		state:         StateClosed,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 2
	}
	return cb
}

// Execute runs fn through the circuit breaker.  While the circuit is
// open fn is not called and the returned error wraps ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the circuit breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.transition(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	since := time.Since(cb.lastFailure)
	if since > cb.resetTimeout {
		cb.transition(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w: %d consecutive failures, retry in %v",
		apperr.ErrCircuitOpen, cb.failures, (cb.resetTimeout - since).Truncate(time.Second))
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return
	}

	cb.successes++
	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.halfOpenMax {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
