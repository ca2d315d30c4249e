package translator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// DecentralizedSpec is the on-chain rendering: a swap with a price impact
// bound, a route hop budget, and an optional private mempool route.
type DecentralizedSpec struct {
	GroupID           string          `json:"group_id"`
	Symbol            string          `json:"symbol"`
	Side              envelope.Side   `json:"side"`
	AmountIn          decimal.Decimal `json:"amount_in"`
	MinAmountOut      decimal.Decimal `json:"min_amount_out"`
	MaxPriceImpactBps decimal.Decimal `json:"max_price_impact_bps"`
	RouteHopBudget    int             `json:"route_hop_budget"`
	PrivateMempool    bool            `json:"private_mempool"`
	Deadline          time.Time       `json:"deadline"`
}

// Environment implements ConnectorSpec.
func (s *DecentralizedSpec) Environment() Environment { return EnvDecentralized }

// Validate implements ConnectorSpec.
func (s *DecentralizedSpec) Validate() error {
	if s.AmountIn.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("decentralized spec %s has non-positive amount in", s.GroupID)
	}
	if s.MinAmountOut.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("decentralized spec %s has non-positive min amount out", s.GroupID)
	}
	if s.RouteHopBudget < 1 {
		return fmt.Errorf("decentralized spec %s has no route hop budget", s.GroupID)
	}
	return nil
}

var (
	tenThousand = decimal.NewFromInt(10000)
	// minOnChainSlippageBps is the tightest bound a swap can honor once gas
	// and pool fees are in; anything below it cannot produce a valid spec.
	minOnChainSlippageBps = decimal.NewFromInt(5)
)

// defaultSwapDeadline bounds swaps without a timing window.
const defaultSwapDeadline = 2 * time.Minute

// DecentralizedTranslator renders directives for an on-chain connector.
type DecentralizedTranslator struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewDecentralizedTranslator creates a decentralized translator.
func NewDecentralizedTranslator() *DecentralizedTranslator {
	return &DecentralizedTranslator{now: time.Now}
}

// Environment implements Translator.
func (t *DecentralizedTranslator) Environment() Environment { return EnvDecentralized }

// Translate implements Translator.
func (t *DecentralizedTranslator) Translate(directive *envelope.ExecutionDirective) (ConnectorSpec, *ExecutionGroup, error) {
	if err := directive.Validate(); err != nil {
		return nil, nil, err
	}
	intent := directive.Intent

	if intent.MaxSlippageBps.LessThan(minOnChainSlippageBps) {
		return nil, nil, fmt.Errorf("slippage bound %s bps below on-chain minimum %s bps",
			intent.MaxSlippageBps, minOnChainSlippageBps)
	}

	// An urgent swap takes the direct pool; a patient one may route wider
	// for better pricing.
	hops := 1
	if intent.Urgency != envelope.UrgencyImmediate {
		hops = 3
	}

	deadline := t.now().UTC().Add(defaultSwapDeadline)
	if intent.Timing != nil && !intent.Timing.Deadline.IsZero() {
		deadline = intent.Timing.Deadline
	}

	amountIn := directive.Size.Quantity
	quote := amountIn.Mul(directive.Entry.LimitPrice)
	// min out = quote * (1 - slippage)
	minOut := quote.Mul(tenThousand.Sub(intent.MaxSlippageBps)).Div(tenThousand)

	group := NewExecutionGroup(directive.FlowID, EnvDecentralized, 1)
	spec := &DecentralizedSpec{
		GroupID:           group.ID,
		Symbol:            directive.Directive.Symbol,
		Side:              directive.Directive.Side,
		AmountIn:          amountIn,
		MinAmountOut:      minOut,
		MaxPriceImpactBps: intent.MaxSlippageBps,
		RouteHopBudget:    hops,
		PrivateMempool:    intent.Visibility != envelope.VisibilityOpen,
		Deadline:          deadline,
	}
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	return spec, group, nil
}

var (
	_ ConnectorSpec = (*DecentralizedSpec)(nil)
	_ Translator    = (*DecentralizedTranslator)(nil)
)
