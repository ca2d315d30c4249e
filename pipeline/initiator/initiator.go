// Package initiator provides the flow initiators, the first stage after the
// coordinator's generic broadcast.
//
// Every initiator subscribes to the same intake broadcast and self-filters
// by stimulus category. The filter-then-transform-then-publish behavior is a
// free function (HandleBroadcast) parameterized by the Initiator interface,
// so variants stay flat: no base struct, no inheritance.
package initiator

import (
	"context"
	"fmt"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Initiator decides whether a stimulus of its category starts a flow and
// what stage input the flow carries.
type Initiator interface {
	// MatchedCategory is the one stimulus category this initiator owns.
	// Pairwise distinct across registered initiators, enforced at startup.
	MatchedCategory() envelope.Category

	// StartSignalName is the signal published when a flow starts.
	StartSignalName() string

	// ShouldStart is the veto gate. A false return carries a short
	// machine-readable reason for the log line.
	ShouldStart(payload any) (bool, string)

	// Transform turns the raw payload into the stage input published with
	// the start signal.
	Transform(payload any) (any, error)
}

// =============================================================================
// TEMPLATE
// =============================================================================

// HandleBroadcast runs one initiator against one intake broadcast.
//
// A category mismatch is a designed no-op: some other initiator owns the
// broadcast. A veto or transform failure ends the flow with the not-started
// reason so the coordinator returns to idle immediately.
func HandleBroadcast(ctx context.Context, bus eventbus.Bus, logger eventbus.Logger, init Initiator, broadcast *eventbus.StimulusBroadcast) error {
	if broadcast.Category != init.MatchedCategory() {
		return nil
	}

	ok, reason := init.ShouldStart(broadcast.Payload)
	if !ok {
		if logger != nil {
			logger.Info("flow_start_vetoed",
				"flow_id", string(broadcast.FlowID),
				"category", string(broadcast.Category),
				"reason", reason)
		}
		return bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: broadcast.FlowID,
			Reason: envelope.TerminalReasonNotStarted,
			Error:  reason,
		})
	}

	stageInput, err := init.Transform(broadcast.Payload)
	if err != nil {
		if logger != nil {
			logger.Error("flow_start_transform_failed",
				"flow_id", string(broadcast.FlowID),
				"category", string(broadcast.Category),
				"error", err.Error())
		}
		return bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: broadcast.FlowID,
			Reason: envelope.TerminalReasonNotStarted,
			Error:  err.Error(),
		})
	}

	return bus.Publish(ctx, &eventbus.FlowStarted{
		Signal:     init.StartSignalName(),
		FlowID:     broadcast.FlowID,
		Category:   broadcast.Category,
		StageInput: stageInput,
	})
}

// ValidateExclusive checks that no two initiators claim the same stimulus
// category. Exclusive routing depends on it: a shared category would start
// two flows from one broadcast.
func ValidateExclusive(inits ...Initiator) error {
	owners := map[envelope.Category]string{}
	for _, init := range inits {
		category := init.MatchedCategory()
		if owner, taken := owners[category]; taken {
			return fmt.Errorf("category %q claimed by both %s and %s",
				category, owner, init.StartSignalName())
		}
		owners[category] = init.StartSignalName()
	}
	return nil
}

// Register subscribes an initiator to the intake broadcast and returns the
// unsubscribe function.
func Register(bus eventbus.Bus, logger eventbus.Logger, init Initiator) func() {
	return bus.Subscribe(eventbus.SignalStimulusBroadcast, func(ctx context.Context, sig eventbus.Signal) error {
		broadcast, ok := sig.(*eventbus.StimulusBroadcast)
		if !ok {
			return fmt.Errorf("unexpected signal type %T on %s", sig, eventbus.SignalStimulusBroadcast)
		}
		return HandleBroadcast(ctx, bus, logger, init, broadcast)
	})
}
