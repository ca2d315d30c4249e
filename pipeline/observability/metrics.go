// Package observability provides Prometheus metrics instrumentation for the
// decision pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// COORDINATOR METRICS
// =============================================================================

var (
	stimuliSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcore_stimuli_submitted_total",
			Help: "Total stimuli accepted into the coordinator queue",
		},
		[]string{"category", "priority"},
	)

	stimuliRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcore_stimuli_rejected_total",
			Help: "Total stimuli rejected at submission",
		},
		[]string{"reason"}, // reason: draining, queue_full, invalid
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowcore_queue_depth",
			Help: "Current number of stimuli waiting in the priority queue",
		},
	)

	flowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcore_flows_total",
			Help: "Total flows by terminal reason",
		},
		[]string{"category", "reason"},
	)

	flowDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowcore_flow_duration_seconds",
			Help:    "End-to-end flow duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"category"},
	)

	staleCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowcore_stale_completions_total",
			Help: "Completion signals discarded because they did not match the active flow",
		},
	)
)

// =============================================================================
// PLANNING METRICS
// =============================================================================

var (
	phaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowcore_phase_duration_seconds",
			Help:    "Planning phase duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"phase"}, // phase: parallel, sequential
	)

	planFilterMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcore_plan_filter_misses_total",
			Help: "Directives skipped by a specialist's confidence range gate",
		},
		[]string{"aspect"},
	)
)

// =============================================================================
// TRANSLATION METRICS
// =============================================================================

var (
	translationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcore_translations_total",
			Help: "Total directive translations",
		},
		[]string{"environment", "status"}, // status: success, error
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordStimulusSubmitted records an accepted stimulus and the new queue depth.
func RecordStimulusSubmitted(category, priority string, depth int) {
	stimuliSubmittedTotal.WithLabelValues(category, priority).Inc()
	queueDepth.Set(float64(depth))
}

// RecordStimulusRejected records a rejected submission.
func RecordStimulusRejected(reason string) {
	stimuliRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordQueueDepth updates the queue depth gauge.
func RecordQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordFlowCompleted records a terminal flow outcome.
// This should be called when the coordinator returns to idle.
func RecordFlowCompleted(category, reason string, durationMS int) {
	flowsTotal.WithLabelValues(category, reason).Inc()
	flowDurationSeconds.WithLabelValues(category).Observe(float64(durationMS) / 1000.0)
}

// RecordStaleCompletion records a discarded out-of-flow completion signal.
func RecordStaleCompletion() {
	staleCompletionsTotal.Inc()
}

// RecordPhaseDuration records one planning phase for one flow.
func RecordPhaseDuration(phase string, durationMS int) {
	phaseDurationSeconds.WithLabelValues(phase).Observe(float64(durationMS) / 1000.0)
}

// RecordPlanFilterMiss records a specialist declining a directive.
func RecordPlanFilterMiss(aspect string) {
	planFilterMissesTotal.WithLabelValues(aspect).Inc()
}

// RecordTranslation records a directive translation attempt.
func RecordTranslation(environment, status string) {
	translationsTotal.WithLabelValues(environment, status).Inc()
}
