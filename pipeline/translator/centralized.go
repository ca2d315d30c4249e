package translator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// TimeInForce is the CEX order lifetime policy.
type TimeInForce string

const (
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceGTD TimeInForce = "gtd"
)

// OrderChunk is one child order of a chunked CEX execution.
type OrderChunk struct {
	Quantity        decimal.Decimal `json:"quantity"`
	LimitPrice      decimal.Decimal `json:"limit_price"`
	VisibleQuantity decimal.Decimal `json:"visible_quantity"`
}

// CentralizedSpec is the central-limit-order-book rendering: the size is
// chunked by urgency and the visible quantity follows the stealth
// preference.
type CentralizedSpec struct {
	GroupID     string          `json:"group_id"`
	Symbol      string          `json:"symbol"`
	Side        envelope.Side   `json:"side"`
	TimeInForce TimeInForce     `json:"time_in_force"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Chunks      []OrderChunk    `json:"chunks"`
	MaxSlipBps  decimal.Decimal `json:"max_slippage_bps"`
}

// Environment implements ConnectorSpec.
func (s *CentralizedSpec) Environment() Environment { return EnvCentralized }

// Validate implements ConnectorSpec.
func (s *CentralizedSpec) Validate() error {
	if len(s.Chunks) == 0 {
		return fmt.Errorf("centralized spec %s has no chunks", s.GroupID)
	}
	for i, chunk := range s.Chunks {
		if chunk.Quantity.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("centralized spec %s chunk %d has non-positive quantity", s.GroupID, i)
		}
		if chunk.VisibleQuantity.GreaterThan(chunk.Quantity) {
			return fmt.Errorf("centralized spec %s chunk %d shows more than it is", s.GroupID, i)
		}
	}
	return nil
}

// Visible fraction of each chunk under the iceberg preference.
var icebergVisiblePct = decimal.RequireFromString("0.2")

// CentralizedTranslator renders directives for a CEX connector.
type CentralizedTranslator struct{}

// NewCentralizedTranslator creates a centralized translator.
func NewCentralizedTranslator() *CentralizedTranslator {
	return &CentralizedTranslator{}
}

// Environment implements Translator.
func (t *CentralizedTranslator) Environment() Environment { return EnvCentralized }

// chunkCount maps urgency to how finely the size is sliced: urgent orders
// hit in one piece, patient ones are worked.
func chunkCount(urgency envelope.Urgency) int {
	switch urgency {
	case envelope.UrgencyImmediate:
		return 1
	case envelope.UrgencyPatient:
		return 5
	default:
		return 3
	}
}

// Translate implements Translator.
func (t *CentralizedTranslator) Translate(directive *envelope.ExecutionDirective) (ConnectorSpec, *ExecutionGroup, error) {
	if err := directive.Validate(); err != nil {
		return nil, nil, err
	}
	intent := directive.Intent

	// Fully hidden orders have no CLOB representation; that preference
	// belongs on-chain.
	if intent.Visibility == envelope.VisibilityDark {
		return nil, nil, fmt.Errorf("dark visibility is not executable on a centralized venue")
	}

	chunks := chunkCount(intent.Urgency)
	quantity := directive.Size.Quantity
	chunkQuantity := quantity.Div(decimal.NewFromInt(int64(chunks)))
	if chunkQuantity.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("quantity %s too small to chunk %d ways", quantity, chunks)
	}

	visible := chunkQuantity
	if intent.Visibility == envelope.VisibilityIceberg {
		visible = chunkQuantity.Mul(icebergVisiblePct)
	}

	tif := TimeInForceGTC
	if intent.Urgency == envelope.UrgencyImmediate {
		tif = TimeInForceIOC
	}

	group := NewExecutionGroup(directive.FlowID, EnvCentralized, chunks)
	spec := &CentralizedSpec{
		GroupID:     group.ID,
		Symbol:      directive.Directive.Symbol,
		Side:        directive.Directive.Side,
		TimeInForce: tif,
		MaxSlipBps:  intent.MaxSlippageBps,
		Chunks:      make([]OrderChunk, 0, chunks),
	}
	if intent.Timing != nil && !intent.Timing.Deadline.IsZero() {
		spec.TimeInForce = TimeInForceGTD
		deadline := intent.Timing.Deadline
		spec.ExpiresAt = &deadline
	}
	for i := 0; i < chunks; i++ {
		spec.Chunks = append(spec.Chunks, OrderChunk{
			Quantity:        chunkQuantity,
			LimitPrice:      directive.Entry.LimitPrice,
			VisibleQuantity: visible,
		})
	}
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	return spec, group, nil
}

var (
	_ ConnectorSpec = (*CentralizedSpec)(nil)
	_ Translator    = (*CentralizedTranslator)(nil)
)
