package circuit

import (
	"fmt"
	"sync"
	"time"

	"binance-setup-scanner/internal/events"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Fetching paused
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled                bool          `json:"enabled"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"` // Failures in a row before tripping
	Cooldown               time.Duration `json:"cooldown"`                 // Pause after a trip
}

// DefaultCircuitBreakerConfig returns safe defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 10,
		Cooldown:               30 * time.Second,
	}
}

// CircuitBreaker pauses upstream calls after a run of consecutive failures.
// It never rejects work outright; callers wait out the cooldown via Wait.
type CircuitBreaker struct {
	config              *CircuitBreakerConfig
	state               BreakerState
	consecutiveFailures int
	totalTrips          int
	lastTripTime        time.Time
	tripReason          string
	mu                  sync.RWMutex
	publisher           events.Publisher
	now                 func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// SetPublisher sets where state changes are broadcast
func (cb *CircuitBreaker) SetPublisher(p events.Publisher) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.publisher = p
}

// Remaining returns how long callers must wait before the next attempt.
// Once the cooldown has elapsed the breaker moves to half-open.
func (cb *CircuitBreaker) Remaining() time.Duration {
	if !cb.config.Enabled {
		return 0
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return 0
	}
	elapsed := cb.now().Sub(cb.lastTripTime)
	if elapsed < cb.config.Cooldown {
		return cb.config.Cooldown - elapsed
	}
	cb.state = StateHalfOpen
	return 0
}

// Wait blocks until the breaker allows the next attempt or done is closed
func (cb *CircuitBreaker) Wait(done <-chan struct{}) error {
	remaining := cb.Remaining()
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		cb.Remaining()
		return nil
	case <-done:
		return fmt.Errorf("circuit breaker wait aborted (reason: %s)", cb.Reason())
	}
}

// RecordSuccess closes the breaker and clears the failure streak
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	recovered := cb.state == StateHalfOpen
	cb.consecutiveFailures = 0
	if recovered {
		cb.state = StateClosed
		cb.tripReason = ""
	}
	pub := cb.publisher
	cb.mu.Unlock()

	if recovered && pub != nil {
		publishState(pub, StateClosed, "recovered")
	}
}

// RecordFailure counts a failure and trips the breaker at the threshold.
// A failure while half-open re-opens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	cb.consecutiveFailures++
	var reason string
	if cb.state == StateHalfOpen {
		reason = "failure while half-open"
	} else if cb.state == StateClosed && cb.consecutiveFailures >= cb.config.MaxConsecutiveFailures {
		reason = fmt.Sprintf("consecutive failures: %d", cb.consecutiveFailures)
	}
	if reason != "" {
		cb.trip(reason)
	}
	pub := cb.publisher
	cb.mu.Unlock()

	if reason != "" && pub != nil {
		publishState(pub, StateOpen, reason)
	}
}

// trip opens the circuit breaker
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
	cb.totalTrips++
}

func publishState(p events.Publisher, state BreakerState, reason string) {
	p.Publish(events.Event{
		Type: events.EventCircuitBreaker,
		Data: map[string]interface{}{
			"state":  string(state),
			"reason": reason,
		},
	})
}

// GetState returns current breaker state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reason returns why the breaker last tripped
func (cb *CircuitBreaker) Reason() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.tripReason
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"state":                string(cb.state),
		"consecutive_failures": cb.consecutiveFailures,
		"total_trips":          cb.totalTrips,
		"trip_reason":          cb.tripReason,
		"last_trip_time":       cb.lastTripTime,
	}
}

// IsEnabled returns if circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	return cb.config.Enabled
}
