// Package circuitbreaker implements a closed/open/half-open breaker shared
// by the scoring and delivery adapters.
package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	// Closed indicates the circuit is allowing requests to pass through.
	Closed State = iota
	// Open indicates the circuit is blocking requests due to failures.
	Open
	// HalfOpen indicates the recovery timeout has elapsed and requests pass
	// through to probe recovery; the next recorded success closes the circuit
	// and the next recorded failure reopens it.
	HalfOpen
)

// String returns a string representation of the circuit state.
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

// Breaker implements an adaptive circuit breaker for one external resource
// (a scoring backend, a delivery backend, ...).
type Breaker struct {
	mu               sync.RWMutex
	resource         string
	failureThreshold int
	recoveryTimeout  time.Duration
	state            State
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	lastSuccessTime  time.Time
	totalRequests    int
	totalFailures    int
}

// New creates a circuit breaker for the named resource.
func New(resource string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		resource:         resource,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            Closed,
	}
}

// ShouldAttempt reports whether a request should be attempted given the
// current circuit state. An open circuit whose recovery timeout has elapsed
// moves to HalfOpen and lets the request through.
func (cb *Breaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
			cb.state = HalfOpen
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful request.
func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	cb.lastSuccessTime = time.Now()
	cb.totalRequests++
	cb.failureCount = 0

	switch cb.state {
	case HalfOpen:
		cb.state = Closed
		slog.Info("circuit breaker closed after successful recovery",
			slog.String("resource", cb.resource))
	case Open:
		cb.state = Closed
		slog.Warn("circuit breaker closed unexpectedly after success",
			slog.String("resource", cb.resource))
	}
}

// RecordFailure records a failed request, opening the circuit once the
// failure threshold is reached.
func (cb *Breaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.totalFailures++
	cb.totalRequests++
	cb.lastFailureTime = time.Now()

	if cb.state != Open && cb.failureCount >= cb.failureThreshold {
		cb.state = Open
		slog.Warn("circuit breaker opened due to consecutive failures",
			slog.String("resource", cb.resource),
			slog.Int("failure_count", cb.failureCount),
			slog.Int("threshold", cb.failureThreshold))
	}
}

// State returns the current circuit state.
func (cb *Breaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns a snapshot of the breaker's counters.
func (cb *Breaker) Stats() map[string]any {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]any{
		"resource":       cb.resource,
		"state":          cb.state.String(),
		"failure_count":  cb.failureCount,
		"success_count":  cb.successCount,
		"total_requests": cb.totalRequests,
		"total_failures": cb.totalFailures,
	}
}

// Manager owns one Breaker per resource ID, lazily created.
type Manager struct {
	mu               sync.RWMutex
	breakers         map[string]*Breaker
	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewManager creates a manager that constructs breakers with the given
// threshold/recovery parameters on first use.
func NewManager(failureThreshold int, recoveryTimeout time.Duration) *Manager {
	return &Manager{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns or creates the breaker for a resource ID.
func (m *Manager) Get(resource string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[resource]; ok {
		return b
	}
	b := New(resource, m.failureThreshold, m.recoveryTimeout)
	m.breakers[resource] = b
	return b
}
