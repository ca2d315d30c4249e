package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// Default slippage bound when the directive carries no hint.
var defaultMaxSlippageBps = decimal.NewFromInt(10)

// IntentSpecialist is the sequential-phase specialist. It consumes only the
// aggregated planning request, which structurally guarantees the three
// parallel plans exist before it runs.
type IntentSpecialist struct {
	// immediateAbove and patientBelow split confidence into the three
	// urgency bands.
	immediateAbove float64
	patientBelow   float64
	// patientWindow bounds execution for patient intents.
	patientWindow time.Duration
	now           func() time.Time
}

// NewIntentSpecialist creates an intent specialist with the given urgency
// bands.
func NewIntentSpecialist(immediateAbove, patientBelow float64, patientWindow time.Duration) *IntentSpecialist {
	if patientWindow <= 0 {
		patientWindow = 5 * time.Minute
	}
	return &IntentSpecialist{
		immediateAbove: immediateAbove,
		patientBelow:   patientBelow,
		patientWindow:  patientWindow,
		now:            time.Now,
	}
}

// Aspect implements Specialist for introspection; the intent specialist is
// wired to the planning-request signal, not the directive signal.
func (s *IntentSpecialist) Aspect() envelope.Aspect {
	return envelope.AspectIntent
}

// Intend derives the execution trade-offs from the aggregated request.
func (s *IntentSpecialist) Intend(request *envelope.PlanningRequest) (*envelope.ExecutionIntent, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	directive := request.Directive

	urgency := envelope.UrgencyNormal
	switch {
	case directive.Confidence >= s.immediateAbove:
		urgency = envelope.UrgencyImmediate
	case directive.Confidence < s.patientBelow:
		urgency = envelope.UrgencyPatient
	}

	visibility := envelope.VisibilityOpen
	if directive.Intent.PreferStealth {
		visibility = envelope.VisibilityIceberg
		// Large passive orders signal intent for a long time; go dark.
		if urgency == envelope.UrgencyPatient {
			visibility = envelope.VisibilityDark
		}
	}

	slippage := directive.Intent.MaxSlippageBps
	if slippage.LessThanOrEqual(decimal.Zero) {
		slippage = defaultMaxSlippageBps
	}

	intent := &envelope.ExecutionIntent{
		FlowID:         request.FlowID,
		Urgency:        urgency,
		Visibility:     visibility,
		MaxSlippageBps: slippage,
	}
	if urgency == envelope.UrgencyPatient {
		now := s.now().UTC()
		intent.Timing = &envelope.TimingWindow{
			NotBefore: now,
			Deadline:  now.Add(s.patientWindow),
		}
	}
	return intent, nil
}

// RegisterIntentSpecialist subscribes the sequential specialist to the
// planning-request signal and returns the unsubscribe function.
func RegisterIntentSpecialist(bus eventbus.Bus, logger eventbus.Logger, spec *IntentSpecialist) func() {
	return bus.Subscribe(eventbus.SignalPlanningRequest, func(ctx context.Context, sig eventbus.Signal) error {
		ready, ok := sig.(*eventbus.PlanningRequestReady)
		if !ok {
			return fmt.Errorf("unexpected signal type %T on %s", sig, eventbus.SignalPlanningRequest)
		}

		intent, err := spec.Intend(ready.Request)
		if err != nil {
			if logger != nil {
				logger.Error("intent_failed",
					"flow_id", string(ready.Request.FlowID),
					"error", err.Error())
			}
			return bus.Publish(ctx, &eventbus.FlowCompleted{
				FlowID: ready.Request.FlowID,
				Reason: envelope.TerminalReasonPlanningFailed,
				Error:  err.Error(),
			})
		}
		return bus.Publish(ctx, &eventbus.IntentCreated{Intent: intent})
	})
}
