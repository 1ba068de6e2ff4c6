// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instruments for source attempts, plan
// provenance, synthesis fallbacks, job phases, and the event stream.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trendlab",
		Name:      "source_attempts_total",
		Help:      "Source attempts by source and outcome.",
	}, []string{"source", "status"})

	sourceFetchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trendlab",
		Name:      "source_fetch_seconds",
		Help:      "Source fetch latency by source kind.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	planProvenance = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trendlab",
		Name:      "plan_provenance_total",
		Help:      "Generated plans by provenance (llm or fallback).",
	}, []string{"provenance"})

	synthesisFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trendlab",
		Name:      "synthesis_fallbacks_total",
		Help:      "Synthesis stages that fell back instead of using the model answer.",
	}, []string{"stage"})

	jobPhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trendlab",
		Name:      "job_phase_transitions_total",
		Help:      "Job status transitions by target status.",
	}, []string{"status"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trendlab",
		Name:      "events_dropped_total",
		Help:      "Progress events dropped because a job stream buffer was full.",
	})
)

// ObserveSourceAttempt records one finished source attempt.
func ObserveSourceAttempt(source, kind, status string, elapsed time.Duration) {
	sourceAttempts.WithLabelValues(source, status).Inc()
	sourceFetchSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObservePlan records the provenance of a generated plan.
func ObservePlan(provenance string) {
	planProvenance.WithLabelValues(provenance).Inc()
}

// ObserveSynthesisFallback records a fallback in stage "synthesize" or "finalize".
func ObserveSynthesisFallback(stage string) {
	synthesisFallbacks.WithLabelValues(stage).Inc()
}

// ObservePhase records a job entering status.
func ObservePhase(status string) {
	jobPhaseTransitions.WithLabelValues(status).Inc()
}

// ObserveDroppedEvent records an event evicted from a full stream buffer.
func ObserveDroppedEvent() {
	eventsDropped.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
