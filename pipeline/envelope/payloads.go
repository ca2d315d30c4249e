package envelope

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Stimulus Payloads
// =============================================================================

// Payload shapes accepted by the flow initiators. Feeders submit these
// inside a Stimulus; the envelope itself never inspects them.

// TickPayload is one market data tick.
type TickPayload struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
	At     time.Time       `json:"at"`
}

// NewsPayload is one external news item.
type NewsPayload struct {
	Source   string   `json:"source"`
	Headline string   `json:"headline"`
	Body     string   `json:"body,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
}

// ScheduledTaskPayload is one due task dispatched by the timer service.
type ScheduledTaskPayload struct {
	TaskID string `json:"task_id"`
	Action string `json:"action"`
	// ExpiresAt, when set, is the point after which running the task is
	// worse than skipping it.
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// UserCommandPayload is one operator command.
type UserCommandPayload struct {
	Action string            `json:"action"`
	Args   map[string]string `json:"args,omitempty"`
}
