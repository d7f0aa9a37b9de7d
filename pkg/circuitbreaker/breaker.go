// Package circuitbreaker guards an external dependency: after enough
// consecutive failures the breaker opens and fails fast, then probes with a
// limited number of half-open requests before closing again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// MaxRequests caps concurrent probes while half-open.
	MaxRequests uint32
	// Interval resets the closed-state failure streak; zero never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	OnStateChange    func(name string, from State, to State)
	Logger           *zap.Logger
}

type CircuitBreaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    uint32
	successes   uint32
	inFlight    uint32
	openedAt    time.Time
	streakStart time.Time
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		name:        name,
		cfg:         cfg,
		state:       StateClosed,
		streakStart: time.Now(),
	}
}

// Execute runs fn under the breaker's admission control.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(false)
			panic(r)
		}
	}()

	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advance(now)

	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.MaxRequests {
			return ErrTooManyRequests
		}
	}

	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.inFlight > 0 {
		cb.inFlight--
	}

	now := time.Now()
	cb.advance(now)

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed, now)
			}
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		// one failed probe is enough evidence the dependency is still down
		cb.transition(StateOpen, now)
	}
}

// advance applies timer-driven transitions. Caller holds the lock.
func (cb *CircuitBreaker) advance(now time.Time) {
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) >= cb.cfg.Timeout {
			cb.transition(StateHalfOpen, now)
		}
	case StateClosed:
		if cb.cfg.Interval > 0 && now.Sub(cb.streakStart) >= cb.cfg.Interval {
			cb.failures = 0
			cb.streakStart = now
		}
	}
}

func (cb *CircuitBreaker) transition(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.failures = 0
	cb.successes = 0
	cb.streakStart = now
	if state == StateOpen {
		cb.openedAt = now
	}

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, prev, state)
	}

	if cb.cfg.Logger != nil {
		cb.cfg.Logger.Info("Circuit breaker state changed",
			zap.String("name", cb.name),
			zap.String("from", prev.String()),
			zap.String("to", state.String()),
		)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(time.Now())
	return cb.state
}
