// Package envelope defines the data model that moves through the decision
// pipeline: the stimulus envelope accepted by the lifecycle coordinator, the
// directive produced by upstream confrontation, the partial plans emitted by
// the planning stage, and the synthesized execution directive handed to the
// connector layer.
//
// Everything in this package is a value object. State machines and mutation
// live with their owning components (coordinator, phase coordinator); the
// types here only carry data between them.
package envelope

// =============================================================================
// Stimulus Categories
// =============================================================================

// Category identifies which kind of external stimulus an envelope carries.
// The category travels as a field inside the generic broadcast; it is never
// the identity of the broadcast signal itself.
type Category string

const (
	// CategoryTick is a market data tick.
	CategoryTick Category = "tick"
	// CategoryNews is an external news event.
	CategoryNews Category = "news"
	// CategoryTimerTask is a due task produced by the timer service.
	CategoryTimerTask Category = "timer_task"
	// CategoryUserCommand is an operator command.
	CategoryUserCommand Category = "user_command"
)

// Valid reports whether the category is one of the known stimulus kinds.
func (c Category) Valid() bool {
	switch c {
	case CategoryTick, CategoryNews, CategoryTimerTask, CategoryUserCommand:
		return true
	default:
		return false
	}
}

// =============================================================================
// Scheduling Priority
// =============================================================================

// Priority orders stimuli in the coordinator's queue. Higher priority is
// dequeued first; within one level stimuli keep arrival order.
type Priority string

const (
	// PriorityCritical is reserved for operator interventions (stop-all).
	PriorityCritical Priority = "critical"
	// PriorityHigh is for time-sensitive stimuli such as news.
	PriorityHigh Priority = "high"
	// PriorityNormal is the default for market data.
	PriorityNormal Priority = "normal"
	// PriorityLow is for background maintenance tasks.
	PriorityLow Priority = "low"
)

// QueueValue returns the heap ordering value (lower = dequeued first).
func (p Priority) QueueValue() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// =============================================================================
// Flow State
// =============================================================================

// FlowState is the lifecycle coordinator's gate. Exactly one flow may hold
// Processing at any instant; Draining admits no new flows at all.
//
// Transitions:
//
//	IDLE -> PROCESSING (dequeue, flow identifier minted)
//	PROCESSING -> IDLE (completion signal for the active flow)
//	IDLE | PROCESSING -> DRAINING (shutdown, terminal)
type FlowState string

const (
	// FlowStateIdle means no flow is in flight; the queue may be drained.
	FlowStateIdle FlowState = "idle"
	// FlowStateProcessing means one flow is in flight; dequeuing is suspended.
	FlowStateProcessing FlowState = "processing"
	// FlowStateDraining means the coordinator is shutting down; queued items
	// are discarded without dispatch.
	FlowStateDraining FlowState = "draining"
)

// =============================================================================
// Terminal Reasons
// =============================================================================

// TerminalReason records why a flow reached its terminal signal.
type TerminalReason string

const (
	// TerminalReasonCompleted indicates the flow ran the full pipeline.
	TerminalReasonCompleted TerminalReason = "completed"
	// TerminalReasonNotStarted indicates the matching initiator vetoed the
	// flow (e.g. rolling window not warm); nothing downstream ran.
	TerminalReasonNotStarted TerminalReason = "not_started"
	// TerminalReasonPlanningFailed indicates a stage specialist returned an
	// error while computing its contribution.
	TerminalReasonPlanningFailed TerminalReason = "planning_failed"
	// TerminalReasonTranslationFailed indicates the intent translator could
	// not produce a valid connector spec for this flow.
	TerminalReasonTranslationFailed TerminalReason = "translation_failed"
	// TerminalReasonStuck indicates the flow watchdog fired before a
	// completion signal arrived.
	TerminalReasonStuck TerminalReason = "stuck_flow"
	// TerminalReasonDrained indicates the stimulus was discarded during
	// coordinator shutdown without starting a flow.
	TerminalReasonDrained TerminalReason = "drained"
)

// IsFailure reports whether the reason describes an abnormal termination.
func (r TerminalReason) IsFailure() bool {
	return r == TerminalReasonPlanningFailed || r == TerminalReasonTranslationFailed || r == TerminalReasonStuck
}

// =============================================================================
// Planning Aspects
// =============================================================================

// Aspect names one independent slice of the planning stage.
type Aspect string

const (
	// AspectEntry plans where the position is opened.
	AspectEntry Aspect = "entry"
	// AspectSize plans how large the position is.
	AspectSize Aspect = "size"
	// AspectExit plans where the position is closed.
	AspectExit Aspect = "exit"
	// AspectIntent is the sequential phase: execution trade-offs derived
	// from the three parallel aspects.
	AspectIntent Aspect = "intent"
)

// ParallelAspects are the aspects computed concurrently before the
// sequential intent phase may run.
var ParallelAspects = []Aspect{AspectEntry, AspectSize, AspectExit}

// =============================================================================
// Execution Trade-Off Enums
// =============================================================================

// Urgency expresses how quickly the plan must reach the market.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyNormal    Urgency = "normal"
	UrgencyPatient   Urgency = "patient"
)

// Visibility expresses the stealth preference for order placement.
type Visibility string

const (
	// VisibilityOpen places full size openly.
	VisibilityOpen Visibility = "open"
	// VisibilityIceberg shows only a fraction of total size.
	VisibilityIceberg Visibility = "iceberg"
	// VisibilityDark prefers hidden or private routing where the venue
	// supports it.
	VisibilityDark Visibility = "dark"
)

// Side is the trade direction carried by a directive.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)
