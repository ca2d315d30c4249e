package envelope

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Directive
// =============================================================================

// EntryHint constrains where the entry specialist may place the position.
type EntryHint struct {
	ReferencePrice decimal.Decimal `json:"reference_price"`
	MaxChasePct    decimal.Decimal `json:"max_chase_pct"` // how far past reference entry may chase
	PreferPassive  bool            `json:"prefer_passive"`
}

// SizeHint constrains the size specialist.
type SizeHint struct {
	MaxQuantity  decimal.Decimal `json:"max_quantity"`
	RiskFraction decimal.Decimal `json:"risk_fraction"` // fraction of capital at risk, (0,1]
}

// ExitHint constrains the exit specialist.
type ExitHint struct {
	StopDistancePct   decimal.Decimal `json:"stop_distance_pct"`
	TargetDistancePct decimal.Decimal `json:"target_distance_pct"`
	TrailingStop      bool            `json:"trailing_stop"`
}

// IntentHint carries upstream preferences for the execution-intent phase.
type IntentHint struct {
	PreferStealth  bool            `json:"prefer_stealth"`
	MaxSlippageBps decimal.Decimal `json:"max_slippage_bps"`
}

// Directive is the pipeline's working unit during the planning stage,
// produced once per flow by the upstream confrontation step. Read-only to
// every stage specialist.
type Directive struct {
	FlowID     FlowID     `json:"flow_id"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Confidence float64    `json:"confidence"` // bounded [0,1]
	Entry      EntryHint  `json:"entry"`
	Size       SizeHint   `json:"size"`
	Exit       ExitHint   `json:"exit"`
	Intent     IntentHint `json:"intent"`
}

// Validate checks directive invariants before it enters the planning stage.
func (d *Directive) Validate() error {
	if d.FlowID == "" {
		return fmt.Errorf("directive missing flow identifier")
	}
	if d.Symbol == "" {
		return fmt.Errorf("directive missing symbol")
	}
	if d.Side != SideBuy && d.Side != SideSell {
		return fmt.Errorf("directive has unknown side %q", d.Side)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("directive confidence %v outside [0,1]", d.Confidence)
	}
	return nil
}
