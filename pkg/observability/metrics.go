// Package observability exposes Prometheus collectors for the council core.
// Outer layers decide where (or whether) to scrape them; the core only
// increments.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts hub publishes by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_events_published_total",
		Help: "Events published to the hub, by event type.",
	}, []string{"event_type"})

	// EventsDropped counts events dropped by the recursion guard.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "council_events_dropped_total",
		Help: "Events dropped because the hub recursion depth limit was hit.",
	})

	// SubscriberPanics counts subscriber callbacks that panicked.
	SubscriberPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "council_subscriber_panics_total",
		Help: "Subscriber callbacks recovered from a panic during dispatch.",
	})

	// ConsensusDecisions counts Wald consensus outcomes.
	ConsensusDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_consensus_decisions_total",
		Help: "Consensus decisions, by outcome.",
	}, []string{"decision"})

	// ShadowDeliberations counts shadow consensus outcomes.
	ShadowDeliberations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_shadow_deliberations_total",
		Help: "Shadow deliberations, by outcome (resolved or escalation reason).",
	}, []string{"outcome"})

	// CircuitBreakerTrips counts circuit-breaker openings per agent.
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_circuit_breaker_trips_total",
		Help: "Times an agent's circuit breaker opened.",
	}, []string{"agent"})

	// CheckpointLatency observes checkpoint store operation latency.
	CheckpointLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "council_checkpoint_latency_seconds",
		Help:    "Checkpoint store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// HealingIterations observes iterations used per healing run.
	HealingIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "council_healing_iterations",
		Help:    "Iterations consumed by a self-healing run.",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
	})

	// OrchestratorRuns counts orchestrator runs by terminal status.
	OrchestratorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_orchestrator_runs_total",
		Help: "Orchestrator runs, by terminal status.",
	}, []string{"status"})
)
