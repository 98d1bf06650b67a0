package governance

import (
	"log/slog"
	"sync"

	"github.com/council-runtime/council/pkg/observability"
)

// DefaultFailureThreshold is the failure count at which an agent's circuit
// opens.
const DefaultFailureThreshold = 3

// CircuitBreaker counts per-agent failures and disables agents that fail
// repeatedly until explicitly reset.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  map[string]int
	threshold int
}

// NewCircuitBreaker creates a breaker. threshold <= 0 selects the default.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &CircuitBreaker{
		failures:  make(map[string]int),
		threshold: threshold,
	}
}

// RecordFailure increments the failure counter for an agent and returns
// the new count.
func (b *CircuitBreaker) RecordFailure(agentName string) int {
	b.mu.Lock()
	b.failures[agentName]++
	count := b.failures[agentName]
	b.mu.Unlock()

	if count == b.threshold {
		observability.CircuitBreakerTrips.WithLabelValues(agentName).Inc()
		slog.Warn("Circuit breaker opened for agent", "agent", agentName, "failures", count)
	}
	return count
}

// IsOpen reports whether the agent's circuit is open (failures reached the
// threshold).
func (b *CircuitBreaker) IsOpen(agentName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[agentName] >= b.threshold
}

// Reset clears the failure counter for an agent.
func (b *CircuitBreaker) Reset(agentName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, agentName)
}

// Failures returns the current failure count for an agent.
func (b *CircuitBreaker) Failures(agentName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[agentName]
}
