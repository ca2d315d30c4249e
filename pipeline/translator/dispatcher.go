package translator

import (
	"context"
	"fmt"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
	"github.com/meridian-quant/flowcore/pipeline/observability"
)

// =============================================================================
// EXECUTION SINK
// =============================================================================

// ExecutionSink is the boundary to the execution/ledger collaborator. The
// sink owns the execution group once it accepts the spec and is responsible
// for the flow's terminal signal.
type ExecutionSink interface {
	Execute(ctx context.Context, spec ConnectorSpec, group *ExecutionGroup) error
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher is the translation edge of the pipeline: it consumes ready
// execution directives, renders them for the configured environment, and
// hands the spec to the execution sink. A translation failure fails the one
// flow; the pipeline keeps serving the queue.
type Dispatcher struct {
	bus        eventbus.Bus
	logger     eventbus.Logger
	translator Translator
	sink       ExecutionSink
	unsub      func()
}

// NewDispatcher creates a dispatcher for one translator and sink.
func NewDispatcher(bus eventbus.Bus, logger eventbus.Logger, tr Translator, sink ExecutionSink) *Dispatcher {
	return &Dispatcher{bus: bus, logger: logger, translator: tr, sink: sink}
}

// Start subscribes the dispatcher to the execution-directive signal.
func (d *Dispatcher) Start() {
	d.unsub = d.bus.Subscribe(eventbus.SignalDirectiveReady, d.handleDirectiveReady)
}

// Stop unsubscribes the dispatcher.
func (d *Dispatcher) Stop() {
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
}

func (d *Dispatcher) handleDirectiveReady(ctx context.Context, sig eventbus.Signal) error {
	ready, ok := sig.(*eventbus.DirectiveReady)
	if !ok || ready.Directive == nil {
		return nil
	}
	directive := ready.Directive
	env := string(d.translator.Environment())

	spec, group, err := d.translator.Translate(directive)
	if err != nil {
		observability.RecordTranslation(env, "error")
		if d.logger != nil {
			d.logger.Error("translation_failed",
				"flow_id", string(directive.FlowID),
				"environment", env,
				"error", err.Error())
		}
		return d.bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: directive.FlowID,
			Reason: envelope.TerminalReasonTranslationFailed,
			Error:  err.Error(),
		})
	}
	observability.RecordTranslation(env, "success")

	if d.logger != nil {
		d.logger.Info("spec_dispatched",
			"flow_id", string(directive.FlowID),
			"environment", env,
			"group_id", group.ID,
			"units", group.Units())
	}

	if err := d.sink.Execute(ctx, spec, group); err != nil {
		if d.logger != nil {
			d.logger.Error("execution_rejected",
				"flow_id", string(directive.FlowID),
				"group_id", group.ID,
				"error", err.Error())
		}
		return d.bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: directive.FlowID,
			Reason: envelope.TerminalReasonTranslationFailed,
			Error:  fmt.Sprintf("execution rejected: %v", err),
		})
	}
	return nil
}

// =============================================================================
// VIRTUAL FILL SINK
// =============================================================================

// VirtualFillSink is the in-process execution collaborator: it accepts any
// spec, fills every unit instantly, and completes the flow. Production
// deployments replace it with a real connector client.
type VirtualFillSink struct {
	bus    eventbus.Bus
	logger eventbus.Logger
}

// NewVirtualFillSink creates a virtual fill sink.
func NewVirtualFillSink(bus eventbus.Bus, logger eventbus.Logger) *VirtualFillSink {
	return &VirtualFillSink{bus: bus, logger: logger}
}

// Execute implements ExecutionSink.
func (s *VirtualFillSink) Execute(ctx context.Context, spec ConnectorSpec, group *ExecutionGroup) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	for group.State() != GroupStateDone {
		if err := group.CompleteUnit(); err != nil {
			return err
		}
	}
	if s.logger != nil {
		s.logger.Info("virtual_fill",
			"flow_id", string(group.FlowID),
			"group_id", group.ID,
			"environment", string(spec.Environment()))
	}
	return s.bus.Publish(ctx, &eventbus.FlowCompleted{
		FlowID: group.FlowID,
		Reason: envelope.TerminalReasonCompleted,
	})
}

var _ ExecutionSink = (*VirtualFillSink)(nil)
