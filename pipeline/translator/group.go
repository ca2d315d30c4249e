package translator

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// EXECUTION GROUP
// =============================================================================

// GroupState is the lifecycle of one execution group.
type GroupState string

const (
	// GroupStateActive means units are still working.
	GroupStateActive GroupState = "active"
	// GroupStateCancelling means a cancel was requested and units are being
	// pulled.
	GroupStateCancelling GroupState = "cancelling"
	// GroupStateDone means every unit finished or was cancelled.
	GroupStateDone GroupState = "done"
)

var (
	// ErrGroupDone is returned by operations on a finished group.
	ErrGroupDone = errors.New("execution group already done")
	// ErrGroupCancelling is returned by Resize during cancellation.
	ErrGroupCancelling = errors.New("execution group is cancelling")
)

// ExecutionGroup ties the child execution units of one flow together so
// they can be cancelled or resized as a unit. Owned by the execution/ledger
// collaborator once created; this side only does the bookkeeping.
type ExecutionGroup struct {
	ID          string          `json:"id"`
	FlowID      envelope.FlowID `json:"flow_id"`
	Environment Environment     `json:"environment"`

	mu        sync.Mutex
	state     GroupState
	units     int
	remaining int
}

// NewExecutionGroup creates an active group with the given unit count.
func NewExecutionGroup(flowID envelope.FlowID, env Environment, units int) *ExecutionGroup {
	if units < 1 {
		units = 1
	}
	return &ExecutionGroup{
		ID:          "grp_" + uuid.New().String()[:16],
		FlowID:      flowID,
		Environment: env,
		state:       GroupStateActive,
		units:       units,
		remaining:   units,
	}
}

// State returns the group's lifecycle state.
func (g *ExecutionGroup) State() GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Units returns the current unit count.
func (g *ExecutionGroup) Units() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.units
}

// Remaining returns the number of units still working.
func (g *ExecutionGroup) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// Cancel requests cancellation of all remaining units. Idempotent while the
// group is live.
func (g *ExecutionGroup) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GroupStateDone {
		return ErrGroupDone
	}
	g.state = GroupStateCancelling
	return nil
}

// Resize modifies the outstanding unit count, keeping already-finished
// units counted.
func (g *ExecutionGroup) Resize(units int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case GroupStateDone:
		return ErrGroupDone
	case GroupStateCancelling:
		return ErrGroupCancelling
	}
	if units < 1 {
		return errors.New("execution group needs at least one unit")
	}
	finished := g.units - g.remaining
	if units <= finished {
		g.units = finished
		g.remaining = 0
		g.state = GroupStateDone
		return nil
	}
	g.units = units
	g.remaining = units - finished
	return nil
}

// CompleteUnit marks one unit finished (filled or cancelled). The group
// transitions to done when the last unit completes.
func (g *ExecutionGroup) CompleteUnit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GroupStateDone {
		return ErrGroupDone
	}
	if g.remaining > 0 {
		g.remaining--
	}
	if g.remaining == 0 {
		g.state = GroupStateDone
	}
	return nil
}
