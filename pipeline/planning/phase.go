package planning

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// PHASE STATE
// =============================================================================

// phaseState tracks one flow through the planning stage.
type phaseState string

const (
	phaseAwaitingParallel   phaseState = "awaiting_parallel"
	phaseAwaitingSequential phaseState = "awaiting_sequential"
	phaseComplete           phaseState = "complete"
)

// flowTracker is the phase coordinator's per-flow bookkeeping. It exists
// only for the duration of one flow and is dropped on the terminal signal.
type flowTracker struct {
	state     phaseState
	directive *envelope.Directive
	entry     *envelope.EntryPlan
	size      *envelope.SizePlan
	exit      *envelope.ExitPlan

	parallel   phaseClock
	sequential phaseClock
}

func (t *flowTracker) parallelComplete() bool {
	return t.directive != nil && t.entry != nil && t.size != nil && t.exit != nil
}

// =============================================================================
// PHASE COORDINATOR
// =============================================================================

// PhaseCoordinator enforces the planning-stage ordering dependency: the
// aggregated planning request is composed only once all three parallel
// partial plans for a flow have arrived, in any order, and the final
// execution directive only once the intent follows.
//
// Partial plans may overtake the directive signal because bus fan-out is
// concurrent, so trackers are created by whichever signal arrives first.
// Duplicate plans for a filled slot are last-write-wins; this is
// provisional behavior, flagged at config validation when two specialists
// share an aspect with overlapping gates.
//
// Completed flow ids are remembered for a bounded window so a straggler
// signal that arrives after the terminal signal is discarded instead of
// re-creating a tracker no one would ever drop.
type PhaseCoordinator struct {
	bus    eventbus.Bus
	logger eventbus.Logger

	mu        sync.Mutex
	flows     map[envelope.FlowID]*flowTracker
	done      map[envelope.FlowID]struct{}
	doneOrder []envelope.FlowID

	unsubs []func()
}

// completedFlowMemory bounds the set of remembered terminal flow ids. The
// coordinator runs flows one at a time, so a straggler can only trail the
// completion it races with by a handful of flows.
const completedFlowMemory = 128

// NewPhaseCoordinator creates a phase coordinator. logger may be nil.
func NewPhaseCoordinator(bus eventbus.Bus, logger eventbus.Logger) *PhaseCoordinator {
	return &PhaseCoordinator{
		bus:    bus,
		logger: logger,
		flows:  make(map[envelope.FlowID]*flowTracker),
		done:   make(map[envelope.FlowID]struct{}),
	}
}

// Start subscribes the coordinator to its input signals.
func (pc *PhaseCoordinator) Start() {
	pc.unsubs = append(pc.unsubs,
		pc.bus.Subscribe(eventbus.SignalDirectiveCreated, pc.handleDirective),
		pc.bus.Subscribe(eventbus.SignalPartialPlanEntry, pc.handlePartialPlan),
		pc.bus.Subscribe(eventbus.SignalPartialPlanSize, pc.handlePartialPlan),
		pc.bus.Subscribe(eventbus.SignalPartialPlanExit, pc.handlePartialPlan),
		pc.bus.Subscribe(eventbus.SignalIntentCreated, pc.handleIntent),
		pc.bus.Subscribe(eventbus.SignalFlowCompleted, pc.handleCompleted),
	)
}

// Stop unsubscribes the coordinator and drops all trackers.
func (pc *PhaseCoordinator) Stop() {
	for _, unsub := range pc.unsubs {
		unsub()
	}
	pc.unsubs = nil

	pc.mu.Lock()
	pc.flows = make(map[envelope.FlowID]*flowTracker)
	pc.done = make(map[envelope.FlowID]struct{})
	pc.doneOrder = nil
	pc.mu.Unlock()
}

// TrackedFlows returns the number of flows currently in the planning stage.
func (pc *PhaseCoordinator) TrackedFlows() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.flows)
}

// tracker returns the flow's tracker, creating it on first sight. Returns
// nil for a flow that already reached its terminal signal: arrivals after
// completion must be discarded, never tracked. Caller holds pc.mu.
func (pc *PhaseCoordinator) tracker(flowID envelope.FlowID) *flowTracker {
	if _, finished := pc.done[flowID]; finished {
		return nil
	}
	t, ok := pc.flows[flowID]
	if !ok {
		t = &flowTracker{state: phaseAwaitingParallel, parallel: startPhase("parallel")}
		pc.flows[flowID] = t
	}
	return t
}

// =============================================================================
// HANDLERS
// =============================================================================

func (pc *PhaseCoordinator) handleDirective(ctx context.Context, sig eventbus.Signal) error {
	created, ok := sig.(*eventbus.DirectiveCreated)
	if !ok || created.Directive == nil {
		return nil
	}
	directive := created.Directive

	if err := directive.Validate(); err != nil {
		if pc.logger != nil {
			pc.logger.Error("directive_invalid",
				"flow_id", string(directive.FlowID),
				"error", err.Error())
		}
		return pc.bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: directive.FlowID,
			Reason: envelope.TerminalReasonPlanningFailed,
			Error:  err.Error(),
		})
	}

	pc.mu.Lock()
	t := pc.tracker(directive.FlowID)
	if t == nil {
		pc.mu.Unlock()
		if pc.logger != nil {
			pc.logger.Warn("directive_for_completed_flow_discarded",
				"flow_id", string(directive.FlowID))
		}
		return nil
	}
	if t.directive != nil {
		pc.mu.Unlock()
		if pc.logger != nil {
			pc.logger.Warn("duplicate_directive_discarded", "flow_id", string(directive.FlowID))
		}
		return nil
	}
	t.directive = directive
	request := pc.maybeAggregate(directive.FlowID, t)
	pc.mu.Unlock()

	return pc.publishRequest(ctx, request)
}

func (pc *PhaseCoordinator) handlePartialPlan(ctx context.Context, sig eventbus.Signal) error {
	plan, ok := sig.(*eventbus.PartialPlanCreated)
	if !ok {
		return nil
	}

	pc.mu.Lock()
	t := pc.tracker(plan.FlowID)
	if t == nil {
		pc.mu.Unlock()
		if pc.logger != nil {
			pc.logger.Warn("stale_partial_plan_discarded",
				"flow_id", string(plan.FlowID),
				"aspect", string(plan.Aspect),
				"state", "completed")
		}
		return nil
	}
	if t.state != phaseAwaitingParallel {
		pc.mu.Unlock()
		if pc.logger != nil {
			pc.logger.Warn("stale_partial_plan_discarded",
				"flow_id", string(plan.FlowID),
				"aspect", string(plan.Aspect),
				"state", string(t.state))
		}
		return nil
	}

	overwritten := false
	switch plan.Aspect {
	case envelope.AspectEntry:
		overwritten = t.entry != nil
		t.entry = plan.Entry
	case envelope.AspectSize:
		overwritten = t.size != nil
		t.size = plan.Size
	case envelope.AspectExit:
		overwritten = t.exit != nil
		t.exit = plan.Exit
	default:
		pc.mu.Unlock()
		if pc.logger != nil {
			pc.logger.Warn("unknown_plan_aspect_discarded",
				"flow_id", string(plan.FlowID),
				"aspect", string(plan.Aspect))
		}
		return nil
	}
	request := pc.maybeAggregate(plan.FlowID, t)
	pc.mu.Unlock()

	// Last-write-wins for overlapping specialists on one aspect.
	if overwritten && pc.logger != nil {
		pc.logger.Warn("plan_slot_overwritten",
			"flow_id", string(plan.FlowID),
			"aspect", string(plan.Aspect))
	}

	return pc.publishRequest(ctx, request)
}

// maybeAggregate composes the planning request once the parallel phase is
// complete. Caller holds pc.mu; the returned request is published outside
// the lock.
func (pc *PhaseCoordinator) maybeAggregate(flowID envelope.FlowID, t *flowTracker) *envelope.PlanningRequest {
	if t.state != phaseAwaitingParallel || !t.parallelComplete() {
		return nil
	}
	t.state = phaseAwaitingSequential
	t.parallel.observe()
	t.sequential = startPhase("sequential")

	return &envelope.PlanningRequest{
		FlowID:    flowID,
		Directive: t.directive,
		Entry:     t.entry,
		Size:      t.size,
		Exit:      t.exit,
	}
}

func (pc *PhaseCoordinator) publishRequest(ctx context.Context, request *envelope.PlanningRequest) error {
	if request == nil {
		return nil
	}
	if pc.logger != nil {
		pc.logger.Info("planning_request_aggregated", "flow_id", string(request.FlowID))
	}
	return pc.bus.Publish(ctx, &eventbus.PlanningRequestReady{Request: request})
}

func (pc *PhaseCoordinator) handleIntent(ctx context.Context, sig eventbus.Signal) error {
	created, ok := sig.(*eventbus.IntentCreated)
	if !ok || created.Intent == nil {
		return nil
	}
	intent := created.Intent

	pc.mu.Lock()
	t, tracked := pc.flows[intent.FlowID]
	if !tracked || t.state != phaseAwaitingSequential {
		pc.mu.Unlock()
		if pc.logger != nil {
			pc.logger.Warn("stale_intent_discarded", "flow_id", string(intent.FlowID))
		}
		return nil
	}
	t.state = phaseComplete
	t.sequential.observe()
	directive := &envelope.ExecutionDirective{
		FlowID:    intent.FlowID,
		Directive: t.directive,
		Entry:     t.entry,
		Size:      t.size,
		Exit:      t.exit,
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}
	pc.mu.Unlock()

	if err := directive.Validate(); err != nil {
		if pc.logger != nil {
			pc.logger.Error("synthesis_invalid",
				"flow_id", string(intent.FlowID),
				"error", err.Error())
		}
		return pc.bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: intent.FlowID,
			Reason: envelope.TerminalReasonPlanningFailed,
			Error:  err.Error(),
		})
	}

	if pc.logger != nil {
		pc.logger.Info("execution_directive_ready", "flow_id", string(intent.FlowID))
	}
	return pc.bus.Publish(ctx, &eventbus.DirectiveReady{Directive: directive})
}

// handleCompleted drops the tracker for a finished flow, whatever its
// reason, and remembers the id so straggler signals still in flight when
// the flow completed are discarded rather than re-tracked.
func (pc *PhaseCoordinator) handleCompleted(ctx context.Context, sig eventbus.Signal) error {
	completed, ok := sig.(*eventbus.FlowCompleted)
	if !ok {
		return nil
	}
	pc.mu.Lock()
	delete(pc.flows, completed.FlowID)
	if _, seen := pc.done[completed.FlowID]; !seen {
		pc.done[completed.FlowID] = struct{}{}
		pc.doneOrder = append(pc.doneOrder, completed.FlowID)
		if len(pc.doneOrder) > completedFlowMemory {
			oldest := pc.doneOrder[0]
			pc.doneOrder = pc.doneOrder[1:]
			delete(pc.done, oldest)
		}
	}
	pc.mu.Unlock()
	return nil
}
