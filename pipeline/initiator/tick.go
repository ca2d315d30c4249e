package initiator

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// WindowSnapshot is the tick initiator's stage input: summary statistics of
// the rolling window at the moment the flow started.
type WindowSnapshot struct {
	Symbol string          `json:"symbol"`
	Count  int             `json:"count"`
	Last   decimal.Decimal `json:"last"`
	Mean   decimal.Decimal `json:"mean"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	At     time.Time       `json:"at"`
}

// TickWindowInitiator starts a flow per tick once its rolling window is
// warm. Cold-start ticks are recorded but vetoed, so the pipeline never
// plans on a half-empty window.
type TickWindowInitiator struct {
	windowSize int

	mu     sync.Mutex
	window []envelope.TickPayload
}

// NewTickWindowInitiator creates a tick initiator with the given window size.
func NewTickWindowInitiator(windowSize int) *TickWindowInitiator {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &TickWindowInitiator{
		windowSize: windowSize,
		window:     make([]envelope.TickPayload, 0, windowSize),
	}
}

// MatchedCategory implements Initiator.
func (i *TickWindowInitiator) MatchedCategory() envelope.Category {
	return envelope.CategoryTick
}

// StartSignalName implements Initiator.
func (i *TickWindowInitiator) StartSignalName() string {
	return eventbus.SignalFlowStartTick
}

// ShouldStart records the tick in the window, then vetoes until the window
// is warm.
func (i *TickWindowInitiator) ShouldStart(payload any) (bool, string) {
	tick, ok := payload.(envelope.TickPayload)
	if !ok {
		return false, "malformed_tick_payload"
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.window = append(i.window, tick)
	if len(i.window) > i.windowSize {
		i.window = i.window[len(i.window)-i.windowSize:]
	}
	if len(i.window) < i.windowSize {
		return false, "window_warming"
	}
	return true, ""
}

// Transform summarizes the warm window.
func (i *TickWindowInitiator) Transform(payload any) (any, error) {
	tick, ok := payload.(envelope.TickPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected tick payload type %T", payload)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.window) == 0 {
		return nil, fmt.Errorf("tick window empty for %s", tick.Symbol)
	}

	sum := decimal.Zero
	high := i.window[0].Price
	low := i.window[0].Price
	for _, w := range i.window {
		sum = sum.Add(w.Price)
		if w.Price.GreaterThan(high) {
			high = w.Price
		}
		if w.Price.LessThan(low) {
			low = w.Price
		}
	}

	return WindowSnapshot{
		Symbol: tick.Symbol,
		Count:  len(i.window),
		Last:   tick.Price,
		Mean:   sum.Div(decimal.NewFromInt(int64(len(i.window)))),
		High:   high,
		Low:    low,
		At:     tick.At,
	}, nil
}

var _ Initiator = (*TickWindowInitiator)(nil)
