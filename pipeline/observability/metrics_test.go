package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordStimulusSubmitted(t *testing.T) {
	RecordStimulusSubmitted("tick_window", "high", 3)

	count := testutil.ToFloat64(stimuliSubmittedTotal.WithLabelValues("tick_window", "high"))
	assert.Greater(t, count, 0.0)
	assert.Equal(t, 3.0, testutil.ToFloat64(queueDepth))
}

func TestRecordFlowCompleted(t *testing.T) {
	RecordFlowCompleted("tick_window", "completed", 42)

	count := testutil.ToFloat64(flowsTotal.WithLabelValues("tick_window", "completed"))
	assert.Greater(t, count, 0.0)
	assert.Greater(t, testutil.CollectAndCount(flowDurationSeconds), 0)
}

func TestRecordPhaseDuration(t *testing.T) {
	tests := []struct {
		name       string
		phase      string
		durationMS int
	}{
		{"parallel phase", "parallel", 12},
		{"sequential phase", "sequential", 3},
		{"zero duration", "parallel", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			RecordPhaseDuration(tt.phase, tt.durationMS)
		})
	}

	// Both phase labels carry at least one sample.
	assert.GreaterOrEqual(t, testutil.CollectAndCount(phaseDurationSeconds), 2)
}

func TestRecordTranslation(t *testing.T) {
	RecordTranslation("simulated", "completed")

	count := testutil.ToFloat64(translationsTotal.WithLabelValues("simulated", "completed"))
	assert.Greater(t, count, 0.0)
}
