package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

func TestFlowStartedCarriesItsOwnName(t *testing.T) {
	// Each initiator publishes under its own start signal; the struct
	// carries the name so one type serves all four variants.
	started := &FlowStarted{
		Signal:   SignalFlowStartNews,
		FlowID:   envelope.NewFlowID(),
		Category: envelope.CategoryNews,
	}
	assert.Equal(t, SignalFlowStartNews, started.SignalName())
}

func TestPartialPlanSignalPerAspect(t *testing.T) {
	plan := &PartialPlanCreated{
		FlowID: envelope.NewFlowID(),
		Aspect: envelope.AspectExit,
		Exit:   &envelope.ExitPlan{},
	}
	assert.Equal(t, SignalPartialPlanExit, plan.SignalName())

	assert.Equal(t, SignalPartialPlanEntry, PartialPlanSignal(envelope.AspectEntry))
	assert.Equal(t, SignalPartialPlanSize, PartialPlanSignal(envelope.AspectSize))
}
