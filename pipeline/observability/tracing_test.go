package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestSamplerSelection(t *testing.T) {
	assert.Equal(t, trace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, trace.AlwaysSample().Description(), samplerFor(0).Description())
	assert.Equal(t, trace.AlwaysSample().Description(), samplerFor(-0.5).Description())
	assert.Equal(t,
		trace.ParentBased(trace.TraceIDRatioBased(0.25)).Description(),
		samplerFor(0.25).Description())
}
