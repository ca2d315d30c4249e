package translator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// SimulatedSpec is the virtual-fill rendering: one unit, filled at the
// limit price, no latency model.
type SimulatedSpec struct {
	GroupID        string          `json:"group_id"`
	Symbol         string          `json:"symbol"`
	Side           envelope.Side   `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	FillPrice      decimal.Decimal `json:"fill_price"`
	MaxSlippageBps decimal.Decimal `json:"max_slippage_bps"`
}

// Environment implements ConnectorSpec.
func (s *SimulatedSpec) Environment() Environment { return EnvSimulated }

// Validate implements ConnectorSpec.
func (s *SimulatedSpec) Validate() error {
	if s.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("simulated spec %s has non-positive quantity", s.GroupID)
	}
	if s.FillPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("simulated spec %s has non-positive fill price", s.GroupID)
	}
	return nil
}

// SimulatedTranslator renders directives for the virtual fill engine.
// Everything fills instantly at the limit price, so urgency, visibility,
// and timing hints are deliberately ignored.
type SimulatedTranslator struct{}

// NewSimulatedTranslator creates a simulated translator.
func NewSimulatedTranslator() *SimulatedTranslator {
	return &SimulatedTranslator{}
}

// Environment implements Translator.
func (t *SimulatedTranslator) Environment() Environment { return EnvSimulated }

// Translate implements Translator.
func (t *SimulatedTranslator) Translate(directive *envelope.ExecutionDirective) (ConnectorSpec, *ExecutionGroup, error) {
	if err := directive.Validate(); err != nil {
		return nil, nil, err
	}

	group := NewExecutionGroup(directive.FlowID, EnvSimulated, 1)
	spec := &SimulatedSpec{
		GroupID:        group.ID,
		Symbol:         directive.Directive.Symbol,
		Side:           directive.Directive.Side,
		Quantity:       directive.Size.Quantity,
		FillPrice:      directive.Entry.LimitPrice,
		MaxSlippageBps: directive.Intent.MaxSlippageBps,
	}
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	return spec, group, nil
}

var (
	_ ConnectorSpec = (*SimulatedSpec)(nil)
	_ Translator    = (*SimulatedTranslator)(nil)
)
