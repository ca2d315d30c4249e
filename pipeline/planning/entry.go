package planning

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

var oneHundred = decimal.NewFromInt(100)

// EntrySpecialist places the entry price. Passive preference joins the
// reference price; otherwise the entry chases past it by the hinted
// fraction, in the direction of the trade.
type EntrySpecialist struct{}

// NewEntrySpecialist creates an entry specialist.
func NewEntrySpecialist() *EntrySpecialist {
	return &EntrySpecialist{}
}

// Aspect implements Specialist.
func (s *EntrySpecialist) Aspect() envelope.Aspect {
	return envelope.AspectEntry
}

// Plan implements Specialist.
func (s *EntrySpecialist) Plan(ctx context.Context, directive *envelope.Directive) (*PartialPlan, error) {
	hint := directive.Entry
	if hint.ReferencePrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("entry hint for %s has non-positive reference price %s",
			directive.Symbol, hint.ReferencePrice)
	}

	if hint.PreferPassive {
		return &PartialPlan{
			Aspect: envelope.AspectEntry,
			Entry: &envelope.EntryPlan{
				LimitPrice: hint.ReferencePrice,
				Passive:    true,
				Rationale:  "join_reference",
			},
		}, nil
	}

	chase := hint.ReferencePrice.Mul(hint.MaxChasePct).Div(oneHundred)
	limit := hint.ReferencePrice.Add(chase)
	if directive.Side == envelope.SideSell {
		limit = hint.ReferencePrice.Sub(chase)
	}
	return &PartialPlan{
		Aspect: envelope.AspectEntry,
		Entry: &envelope.EntryPlan{
			LimitPrice: limit,
			Passive:    false,
			Rationale:  "chase_reference",
		},
	}, nil
}

var _ Specialist = (*EntrySpecialist)(nil)
