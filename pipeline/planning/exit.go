package planning

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// ExitSpecialist derives stop and target levels from the hinted distances
// around the reference price, mirrored by trade side.
type ExitSpecialist struct{}

// NewExitSpecialist creates an exit specialist.
func NewExitSpecialist() *ExitSpecialist {
	return &ExitSpecialist{}
}

// Aspect implements Specialist.
func (s *ExitSpecialist) Aspect() envelope.Aspect {
	return envelope.AspectExit
}

// Plan implements Specialist.
func (s *ExitSpecialist) Plan(ctx context.Context, directive *envelope.Directive) (*PartialPlan, error) {
	hint := directive.Exit
	price := directive.Entry.ReferencePrice
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("cannot plan exits for %s without a positive reference price", directive.Symbol)
	}
	if hint.StopDistancePct.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("exit hint for %s has non-positive stop distance %s",
			directive.Symbol, hint.StopDistancePct)
	}
	if hint.TargetDistancePct.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("exit hint for %s has non-positive target distance %s",
			directive.Symbol, hint.TargetDistancePct)
	}

	stopDelta := price.Mul(hint.StopDistancePct).Div(oneHundred)
	targetDelta := price.Mul(hint.TargetDistancePct).Div(oneHundred)

	stop := price.Sub(stopDelta)
	target := price.Add(targetDelta)
	if directive.Side == envelope.SideSell {
		stop = price.Add(stopDelta)
		target = price.Sub(targetDelta)
	}

	return &PartialPlan{
		Aspect: envelope.AspectExit,
		Exit: &envelope.ExitPlan{
			StopPrice:   stop,
			TargetPrice: target,
			Trailing:    hint.TrailingStop,
		},
	}, nil
}

var _ Specialist = (*ExitSpecialist)(nil)
