// Signal definitions for the decision pipeline.
//
// The fixed set of named signals external components may subscribe to:
// the generic intake broadcast, each initiator's flow-start signal, the
// three partial-plan signals, the aggregated planning request, the
// execution-intent signal, the execution-directive signal, and the flow
// completion signal.
package eventbus

import (
	"time"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// SIGNAL NAMES
// =============================================================================

const (
	// SignalStimulusBroadcast is the generic intake broadcast. Category is
	// carried as a field; every initiator subscribes to this one name and
	// self-filters.
	SignalStimulusBroadcast = "stimulus.broadcast"

	// Flow-start signals, one per initiator variant.
	SignalFlowStartTick     = "flow.start.tick"
	SignalFlowStartNews     = "flow.start.news"
	SignalFlowStartSchedule = "flow.start.schedule"
	SignalFlowStartCommand  = "flow.start.command"

	// SignalDirectiveCreated carries the confrontation step's directive into
	// the planning stage.
	SignalDirectiveCreated = "directive.created"

	// Partial-plan signals, one per parallel planning aspect.
	SignalPartialPlanEntry = "plan.partial.entry"
	SignalPartialPlanSize  = "plan.partial.size"
	SignalPartialPlanExit  = "plan.partial.exit"

	// SignalPlanningRequest is the aggregated planning request: the only
	// permitted trigger for the sequential intent phase.
	SignalPlanningRequest = "plan.request"

	// SignalIntentCreated carries the execution intent back to the phase
	// coordinator for final synthesis.
	SignalIntentCreated = "intent.created"

	// SignalDirectiveReady carries the synthesized execution directive to
	// the translation/execution layer.
	SignalDirectiveReady = "directive.ready"

	// SignalFlowCompleted is the terminal signal correlated back to the
	// lifecycle coordinator by flow identifier.
	SignalFlowCompleted = "flow.completed"
)

// partialPlanSignals maps each parallel aspect to its signal name.
var partialPlanSignals = map[envelope.Aspect]string{
	envelope.AspectEntry: SignalPartialPlanEntry,
	envelope.AspectSize:  SignalPartialPlanSize,
	envelope.AspectExit:  SignalPartialPlanExit,
}

// PartialPlanSignal returns the signal name for a parallel aspect's plan.
func PartialPlanSignal(aspect envelope.Aspect) string {
	return partialPlanSignals[aspect]
}

// =============================================================================
// SIGNAL TYPES
// =============================================================================

// StimulusBroadcast is the single generic envelope broadcast per flow.
type StimulusBroadcast struct {
	FlowID     envelope.FlowID   `json:"flow_id"`
	Category   envelope.Category `json:"category"`
	Payload    any               `json:"payload"`
	Priority   envelope.Priority `json:"priority"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// SignalName implements Signal.
func (s *StimulusBroadcast) SignalName() string { return SignalStimulusBroadcast }

// FlowStarted is published by the one initiator that claims a broadcast.
// The signal name varies per initiator, so it is carried as a field the way
// dynamically named messages carry their own type.
type FlowStarted struct {
	Signal   string            `json:"signal"`
	FlowID   envelope.FlowID   `json:"flow_id"`
	Category envelope.Category `json:"category"`
	// StageInput is the initiator's transformed payload handed to the
	// upstream analysis stages.
	StageInput any `json:"stage_input"`
}

// SignalName implements Signal.
func (s *FlowStarted) SignalName() string { return s.Signal }

// DirectiveCreated carries the upstream confrontation step's directive.
type DirectiveCreated struct {
	Directive *envelope.Directive `json:"directive"`
}

// SignalName implements Signal.
func (s *DirectiveCreated) SignalName() string { return SignalDirectiveCreated }

// PartialPlanCreated is published by a parallel-phase specialist. Exactly
// one of Entry/Size/Exit is set, matching Aspect.
type PartialPlanCreated struct {
	FlowID envelope.FlowID     `json:"flow_id"`
	Aspect envelope.Aspect     `json:"aspect"`
	Entry  *envelope.EntryPlan `json:"entry,omitempty"`
	Size   *envelope.SizePlan  `json:"size,omitempty"`
	Exit   *envelope.ExitPlan  `json:"exit,omitempty"`
}

// SignalName implements Signal.
func (s *PartialPlanCreated) SignalName() string { return PartialPlanSignal(s.Aspect) }

// PlanningRequestReady is published by the phase coordinator once all three
// parallel partial plans for a flow have arrived.
type PlanningRequestReady struct {
	Request *envelope.PlanningRequest `json:"request"`
}

// SignalName implements Signal.
func (s *PlanningRequestReady) SignalName() string { return SignalPlanningRequest }

// IntentCreated is published by the sequential-phase specialist.
type IntentCreated struct {
	Intent *envelope.ExecutionIntent `json:"intent"`
}

// SignalName implements Signal.
func (s *IntentCreated) SignalName() string { return SignalIntentCreated }

// DirectiveReady carries the final synthesis to the execution layer.
type DirectiveReady struct {
	Directive *envelope.ExecutionDirective `json:"directive"`
}

// SignalName implements Signal.
func (s *DirectiveReady) SignalName() string { return SignalDirectiveReady }

// FlowCompleted is the terminal signal for one flow. The coordinator
// discards it unless FlowID matches the active flow.
type FlowCompleted struct {
	FlowID envelope.FlowID         `json:"flow_id"`
	Reason envelope.TerminalReason `json:"reason"`
	Error  string                  `json:"error,omitempty"`
}

// SignalName implements Signal.
func (s *FlowCompleted) SignalName() string { return SignalFlowCompleted }
