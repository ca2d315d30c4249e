// Package planning provides the stage specialists and the phase coordinator
// that enforces the parallel-then-sequential planning order.
//
// The three parallel specialists (entry, size, exit) each consume the
// directive independently and publish one partial plan. The phase
// coordinator aggregates the three into a planning request, which is the
// sole input of the sequential intent specialist.
package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
	"github.com/meridian-quant/flowcore/pipeline/observability"
)

// =============================================================================
// RANGE GATE
// =============================================================================

// RangeGate is a specialist's confidence filter. Bounds are inclusive.
type RangeGate struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether the confidence value passes the gate.
func (g RangeGate) Contains(confidence float64) bool {
	return confidence >= g.Min && confidence <= g.Max
}

// Validate checks the gate bounds.
func (g RangeGate) Validate() error {
	if g.Min < 0 || g.Max > 1 {
		return fmt.Errorf("range gate [%v,%v] outside [0,1]", g.Min, g.Max)
	}
	if g.Min > g.Max {
		return fmt.Errorf("range gate min %v above max %v", g.Min, g.Max)
	}
	return nil
}

// Overlaps reports whether two gates share any confidence value.
func (g RangeGate) Overlaps(other RangeGate) bool {
	return g.Min <= other.Max && other.Min <= g.Max
}

func (g RangeGate) String() string {
	return fmt.Sprintf("[%.2f,%.2f]", g.Min, g.Max)
}

// =============================================================================
// CONTRACT
// =============================================================================

// PartialPlan is one parallel specialist's output. Exactly one of
// Entry/Size/Exit is set, matching Aspect.
type PartialPlan struct {
	Aspect envelope.Aspect
	Entry  *envelope.EntryPlan
	Size   *envelope.SizePlan
	Exit   *envelope.ExitPlan
}

// Specialist computes one aspect's contribution to the trade plan. The
// directive is read-only; the confidence gate lives outside the specialist
// so variants stay pure planning logic.
type Specialist interface {
	Aspect() envelope.Aspect
	Plan(ctx context.Context, directive *envelope.Directive) (*PartialPlan, error)
}

// =============================================================================
// TEMPLATE
// =============================================================================

// HandleDirective runs one parallel specialist against one directive.
//
// A gate miss is a designed no-op, logged with the confidence value and the
// configured range. A plan error fails the flow so the coordinator is not
// left waiting for a partial plan that will never come.
func HandleDirective(ctx context.Context, bus eventbus.Bus, logger eventbus.Logger, spec Specialist, gate RangeGate, created *eventbus.DirectiveCreated) error {
	directive := created.Directive
	if directive == nil {
		return fmt.Errorf("directive signal without directive")
	}

	if !gate.Contains(directive.Confidence) {
		observability.RecordPlanFilterMiss(string(spec.Aspect()))
		if logger != nil {
			logger.Info("plan_filter_miss",
				"flow_id", string(directive.FlowID),
				"aspect", string(spec.Aspect()),
				"confidence", directive.Confidence,
				"range", gate.String())
		}
		return nil
	}

	plan, err := spec.Plan(ctx, directive)
	if err != nil {
		if logger != nil {
			logger.Error("plan_failed",
				"flow_id", string(directive.FlowID),
				"aspect", string(spec.Aspect()),
				"error", err.Error())
		}
		return bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: directive.FlowID,
			Reason: envelope.TerminalReasonPlanningFailed,
			Error:  err.Error(),
		})
	}

	return bus.Publish(ctx, &eventbus.PartialPlanCreated{
		FlowID: directive.FlowID,
		Aspect: plan.Aspect,
		Entry:  plan.Entry,
		Size:   plan.Size,
		Exit:   plan.Exit,
	})
}

// RegisterSpecialist subscribes a parallel specialist to the directive
// signal and returns the unsubscribe function.
func RegisterSpecialist(bus eventbus.Bus, logger eventbus.Logger, spec Specialist, gate RangeGate) func() {
	return bus.Subscribe(eventbus.SignalDirectiveCreated, func(ctx context.Context, sig eventbus.Signal) error {
		created, ok := sig.(*eventbus.DirectiveCreated)
		if !ok {
			return fmt.Errorf("unexpected signal type %T on %s", sig, eventbus.SignalDirectiveCreated)
		}
		return HandleDirective(ctx, bus, logger, spec, gate, created)
	})
}

// =============================================================================
// TIMING
// =============================================================================

// phaseClock measures one planning phase for the duration histogram.
type phaseClock struct {
	phase   string
	started time.Time
}

func startPhase(phase string) phaseClock {
	return phaseClock{phase: phase, started: time.Now()}
}

func (c phaseClock) observe() {
	observability.RecordPhaseDuration(c.phase, int(time.Since(c.started).Milliseconds()))
}
