package envelope

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Partial Plans (parallel phase outputs)
// =============================================================================

// EntryPlan is the entry aspect's contribution: where the position opens.
type EntryPlan struct {
	LimitPrice decimal.Decimal `json:"limit_price"`
	Passive    bool            `json:"passive"`
	Rationale  string          `json:"rationale,omitempty"`
}

// SizePlan is the size aspect's contribution: how large the position is.
type SizePlan struct {
	Quantity decimal.Decimal `json:"quantity"`
	Notional decimal.Decimal `json:"notional"`
}

// ExitPlan is the exit aspect's contribution: stop and target levels.
type ExitPlan struct {
	StopPrice   decimal.Decimal `json:"stop_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Trailing    bool            `json:"trailing"`
}

// =============================================================================
// Aggregated Planning Request (sequential phase input)
// =============================================================================

// PlanningRequest is composed by the phase coordinator once all three
// parallel partial plans for a flow are present. It is the sole input type
// of the sequential intent phase, which structurally cannot run earlier
// because this type does not exist until the third plan arrives.
type PlanningRequest struct {
	FlowID    FlowID     `json:"flow_id"`
	Directive *Directive `json:"directive"`
	Entry     *EntryPlan `json:"entry"`
	Size      *SizePlan  `json:"size"`
	Exit      *ExitPlan  `json:"exit"`
}

// Validate enforces the phase-ordering guarantee: an aggregated request
// always carries exactly three non-nil partial plans.
func (r *PlanningRequest) Validate() error {
	if r.FlowID == "" {
		return fmt.Errorf("planning request missing flow identifier")
	}
	if r.Directive == nil {
		return fmt.Errorf("planning request %s missing directive", r.FlowID)
	}
	if r.Entry == nil || r.Size == nil || r.Exit == nil {
		return fmt.Errorf("planning request %s incomplete: entry=%t size=%t exit=%t",
			r.FlowID, r.Entry != nil, r.Size != nil, r.Exit != nil)
	}
	return nil
}

// =============================================================================
// Execution Intent (sequential phase output)
// =============================================================================

// TimingWindow optionally bounds when execution may happen.
type TimingWindow struct {
	NotBefore time.Time `json:"not_before"`
	Deadline  time.Time `json:"deadline"`
}

// ExecutionIntent is the protocol-agnostic trade-off descriptor produced by
// the sequential-phase specialist. Immutable once published.
type ExecutionIntent struct {
	FlowID         FlowID          `json:"flow_id"`
	Urgency        Urgency         `json:"urgency"`
	Visibility     Visibility      `json:"visibility"`
	MaxSlippageBps decimal.Decimal `json:"max_slippage_bps"`
	Timing         *TimingWindow   `json:"timing,omitempty"`
}

// =============================================================================
// Execution Directive (final synthesis)
// =============================================================================

// ExecutionDirective is the phase coordinator's final synthesis: the three
// partial plans plus the execution intent, correlated by flow identifier.
// Produced exactly once per flow.
type ExecutionDirective struct {
	FlowID    FlowID           `json:"flow_id"`
	Directive *Directive       `json:"directive"`
	Entry     *EntryPlan       `json:"entry"`
	Size      *SizePlan        `json:"size"`
	Exit      *ExitPlan        `json:"exit"`
	Intent    *ExecutionIntent `json:"intent"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks the synthesis is complete before translation.
func (d *ExecutionDirective) Validate() error {
	if d.FlowID == "" {
		return fmt.Errorf("execution directive missing flow identifier")
	}
	if d.Directive == nil || d.Entry == nil || d.Size == nil || d.Exit == nil || d.Intent == nil {
		return fmt.Errorf("execution directive %s incomplete", d.FlowID)
	}
	return nil
}
