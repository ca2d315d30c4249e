package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Flow Identifier
// =============================================================================

// FlowID is the opaque token minted when a flow transitions IDLE->PROCESSING.
// It is attached to every downstream signal of that flow and is the only view
// of coordinator state any downstream component ever gets.
type FlowID string

// NewFlowID mints a unique flow identifier.
func NewFlowID() FlowID {
	return FlowID("flow_" + uuid.New().String()[:16])
}

// =============================================================================
// Stimulus Envelope
// =============================================================================

// Stimulus is one external event submitted to the lifecycle coordinator.
// Immutable once enqueued: the coordinator copies it by value and nothing
// downstream ever sees the queue entry itself.
type Stimulus struct {
	Category   Category
	Payload    any
	Priority   Priority
	EnqueuedAt time.Time
}

// NewStimulus builds a stimulus with the enqueue timestamp set to now.
func NewStimulus(category Category, payload any, priority Priority) Stimulus {
	return Stimulus{
		Category:   category,
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks the envelope fields before enqueue.
func (s Stimulus) Validate() error {
	if !s.Category.Valid() {
		return fmt.Errorf("unknown stimulus category %q", s.Category)
	}
	switch s.Priority {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
	default:
		return fmt.Errorf("unknown stimulus priority %q", s.Priority)
	}
	return nil
}
