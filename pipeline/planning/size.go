package planning

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// SizeSpecialist sizes the position from the configured capital base and
// the directive's risk fraction, capped by the hinted maximum quantity.
type SizeSpecialist struct {
	capital decimal.Decimal
}

// NewSizeSpecialist creates a size specialist over the given capital base.
func NewSizeSpecialist(capital decimal.Decimal) *SizeSpecialist {
	return &SizeSpecialist{capital: capital}
}

// Aspect implements Specialist.
func (s *SizeSpecialist) Aspect() envelope.Aspect {
	return envelope.AspectSize
}

// Plan implements Specialist.
func (s *SizeSpecialist) Plan(ctx context.Context, directive *envelope.Directive) (*PartialPlan, error) {
	hint := directive.Size
	price := directive.Entry.ReferencePrice
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("cannot size %s without a positive reference price", directive.Symbol)
	}
	if hint.RiskFraction.LessThanOrEqual(decimal.Zero) || hint.RiskFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("size hint for %s has risk fraction %s outside (0,1]",
			directive.Symbol, hint.RiskFraction)
	}

	quantity := s.capital.Mul(hint.RiskFraction).Div(price)
	if hint.MaxQuantity.GreaterThan(decimal.Zero) && quantity.GreaterThan(hint.MaxQuantity) {
		quantity = hint.MaxQuantity
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("sized %s to zero quantity", directive.Symbol)
	}

	return &PartialPlan{
		Aspect: envelope.AspectSize,
		Size: &envelope.SizePlan{
			Quantity: quantity,
			Notional: quantity.Mul(price),
		},
	}, nil
}

var _ Specialist = (*SizeSpecialist)(nil)
