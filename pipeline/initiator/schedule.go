package initiator

import (
	"fmt"
	"time"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// ScheduledTaskInitiator starts a flow per due timer task. Tasks that sat in
// the queue past their expiry are vetoed instead of executed late.
type ScheduledTaskInitiator struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewScheduledTaskInitiator creates a scheduled-task initiator.
func NewScheduledTaskInitiator() *ScheduledTaskInitiator {
	return &ScheduledTaskInitiator{now: time.Now}
}

// MatchedCategory implements Initiator.
func (i *ScheduledTaskInitiator) MatchedCategory() envelope.Category {
	return envelope.CategoryTimerTask
}

// StartSignalName implements Initiator.
func (i *ScheduledTaskInitiator) StartSignalName() string {
	return eventbus.SignalFlowStartSchedule
}

// ShouldStart vetoes expired tasks.
func (i *ScheduledTaskInitiator) ShouldStart(payload any) (bool, string) {
	task, ok := payload.(envelope.ScheduledTaskPayload)
	if !ok {
		return false, "malformed_task_payload"
	}
	if !task.ExpiresAt.IsZero() && i.now().After(task.ExpiresAt) {
		return false, "task_expired"
	}
	return true, ""
}

// Transform passes the task payload through unchanged.
func (i *ScheduledTaskInitiator) Transform(payload any) (any, error) {
	task, ok := payload.(envelope.ScheduledTaskPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected task payload type %T", payload)
	}
	return task, nil
}

var _ Initiator = (*ScheduledTaskInitiator)(nil)
