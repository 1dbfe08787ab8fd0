// Package resilience bounds calls to external services with retries and a
// circuit breaker.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls without attempting them.
	CircuitOpen
	// CircuitHalfOpen lets one probe call through after the reset timeout.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive tripping failures that
	// open the circuit. Default: 1.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe call is
	// allowed. Default: 5m.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count as failures. If nil, IsUnavailable
	// is used.
	ShouldTrip func(err error) bool

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// CircuitBreaker stops calling a service once it is known to be down.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	openedAt            time.Time
	rejected            int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Minute
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsUnavailable
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// ExecuteVal runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling fn.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Rejected returns how many calls were refused while the circuit was open.
func (cb *CircuitBreaker) Rejected() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		cb.rejected++
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.consecutiveFailures = 0
		if cb.state == CircuitHalfOpen {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.consecutiveFailures++
	if cb.state == CircuitHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.nowFunc()
		if cb.state != CircuitOpen {
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
