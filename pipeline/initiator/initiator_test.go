package initiator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// signalSink collects flow-start and flow-completion signals.
type signalSink struct {
	mu        sync.Mutex
	started   []*eventbus.FlowStarted
	completed []*eventbus.FlowCompleted
}

func newSignalSink(bus eventbus.Bus) *signalSink {
	sink := &signalSink{}
	record := func(ctx context.Context, sig eventbus.Signal) error {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		switch s := sig.(type) {
		case *eventbus.FlowStarted:
			sink.started = append(sink.started, s)
		case *eventbus.FlowCompleted:
			sink.completed = append(sink.completed, s)
		}
		return nil
	}
	for _, name := range []string{
		eventbus.SignalFlowStartTick,
		eventbus.SignalFlowStartNews,
		eventbus.SignalFlowStartSchedule,
		eventbus.SignalFlowStartCommand,
		eventbus.SignalFlowCompleted,
	} {
		bus.Subscribe(name, record)
	}
	return sink
}

func (s *signalSink) startedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started)
}

func (s *signalSink) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func tickBroadcast(price string) *eventbus.StimulusBroadcast {
	return &eventbus.StimulusBroadcast{
		FlowID:   envelope.NewFlowID(),
		Category: envelope.CategoryTick,
		Payload: envelope.TickPayload{
			Symbol: "BTCUSDT",
			Price:  decimal.RequireFromString(price),
			Volume: decimal.NewFromInt(1),
			At:     time.Now(),
		},
		Priority:   envelope.PriorityNormal,
		EnqueuedAt: time.Now(),
	}
}

// =============================================================================
// TEMPLATE TESTS
// =============================================================================

func TestCategoryMismatchIsNoOp(t *testing.T) {
	// A news broadcast handled by the tick initiator must produce nothing.
	bus := eventbus.NewInMemoryBus(nil)
	sink := newSignalSink(bus)
	init := NewTickWindowInitiator(1)

	broadcast := &eventbus.StimulusBroadcast{
		FlowID:   envelope.NewFlowID(),
		Category: envelope.CategoryNews,
		Payload:  envelope.NewsPayload{Headline: "rates unchanged"},
	}
	require.NoError(t, HandleBroadcast(context.Background(), bus, nil, init, broadcast))

	assert.Equal(t, 0, sink.startedCount())
	assert.Equal(t, 0, sink.completedCount())
}

func TestExclusiveRouting(t *testing.T) {
	// With all four initiators registered, exactly one claims a broadcast.
	bus := eventbus.NewInMemoryBus(nil)
	sink := newSignalSink(bus)

	Register(bus, nil, NewTickWindowInitiator(1))
	Register(bus, nil, NewNewsFilterInitiator([]string{"halving"}))
	Register(bus, nil, NewScheduledTaskInitiator())
	Register(bus, nil, NewUserCommandInitiator())

	require.NoError(t, bus.Publish(context.Background(), tickBroadcast("43000")))

	require.Equal(t, 1, sink.startedCount())
	assert.Equal(t, eventbus.SignalFlowStartTick, sink.started[0].Signal)
	assert.Equal(t, 0, sink.completedCount())
}

func TestVetoCompletesFlowAsNotStarted(t *testing.T) {
	// Window of 3, first tick: veto, flow ends immediately with the
	// not-started reason and no start signal.
	bus := eventbus.NewInMemoryBus(nil)
	sink := newSignalSink(bus)
	init := NewTickWindowInitiator(3)

	broadcast := tickBroadcast("43000")
	require.NoError(t, HandleBroadcast(context.Background(), bus, nil, init, broadcast))

	assert.Equal(t, 0, sink.startedCount())
	require.Equal(t, 1, sink.completedCount())
	assert.Equal(t, broadcast.FlowID, sink.completed[0].FlowID)
	assert.Equal(t, envelope.TerminalReasonNotStarted, sink.completed[0].Reason)
	assert.Equal(t, "window_warming", sink.completed[0].Error)
}

// =============================================================================
// TICK WINDOW TESTS
// =============================================================================

func TestTickWindowWarmsThenStarts(t *testing.T) {
	bus := eventbus.NewInMemoryBus(nil)
	sink := newSignalSink(bus)
	init := NewTickWindowInitiator(3)
	ctx := context.Background()

	require.NoError(t, HandleBroadcast(ctx, bus, nil, init, tickBroadcast("100")))
	require.NoError(t, HandleBroadcast(ctx, bus, nil, init, tickBroadcast("110")))
	assert.Equal(t, 0, sink.startedCount())

	require.NoError(t, HandleBroadcast(ctx, bus, nil, init, tickBroadcast("90")))
	require.Equal(t, 1, sink.startedCount())

	snapshot := sink.started[0].StageInput.(WindowSnapshot)
	assert.Equal(t, "BTCUSDT", snapshot.Symbol)
	assert.Equal(t, 3, snapshot.Count)
	assert.True(t, snapshot.Mean.Equal(decimal.RequireFromString("100")))
	assert.True(t, snapshot.High.Equal(decimal.RequireFromString("110")))
	assert.True(t, snapshot.Low.Equal(decimal.RequireFromString("90")))
	assert.True(t, snapshot.Last.Equal(decimal.RequireFromString("90")))
}

func TestTickWindowSlides(t *testing.T) {
	init := NewTickWindowInitiator(2)

	ok, _ := init.ShouldStart(envelope.TickPayload{Price: decimal.NewFromInt(1)})
	assert.False(t, ok)
	ok, _ = init.ShouldStart(envelope.TickPayload{Price: decimal.NewFromInt(5)})
	assert.True(t, ok)
	ok, _ = init.ShouldStart(envelope.TickPayload{Price: decimal.NewFromInt(9)})
	assert.True(t, ok)

	out, err := init.Transform(envelope.TickPayload{Symbol: "X", Price: decimal.NewFromInt(9)})
	require.NoError(t, err)
	// Window holds the last two ticks only.
	assert.True(t, out.(WindowSnapshot).Mean.Equal(decimal.NewFromInt(7)))
}

// =============================================================================
// NEWS FILTER TESTS
// =============================================================================

func TestNewsFilter(t *testing.T) {
	init := NewNewsFilterInitiator([]string{"halving", "ETF"})

	ok, reason := init.ShouldStart(envelope.NewsPayload{Headline: "weather mild in Lisbon"})
	assert.False(t, ok)
	assert.Equal(t, "irrelevant_news", reason)

	ok, _ = init.ShouldStart(envelope.NewsPayload{Headline: "Spot ETF approval expected"})
	assert.True(t, ok)

	out, err := init.Transform(envelope.NewsPayload{
		Source:   "wire",
		Headline: "Halving complete, ETF inflows continue",
		Symbols:  []string{"BTCUSDT"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"halving", "etf"}, out.(NewsSignal).MatchedKeywords)
}

// =============================================================================
// SCHEDULED TASK TESTS
// =============================================================================

func TestScheduledTaskExpiryVeto(t *testing.T) {
	init := NewScheduledTaskInitiator()
	init.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	ok, reason := init.ShouldStart(envelope.ScheduledTaskPayload{
		TaskID:    "task_1",
		Action:    "rebalance",
		ExpiresAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	})
	assert.False(t, ok)
	assert.Equal(t, "task_expired", reason)

	ok, _ = init.ShouldStart(envelope.ScheduledTaskPayload{TaskID: "task_2", Action: "rebalance"})
	assert.True(t, ok)
}

// =============================================================================
// USER COMMAND TESTS
// =============================================================================

func TestUserCommandRouting(t *testing.T) {
	init := NewUserCommandInitiator()

	ok, reason := init.ShouldStart(envelope.UserCommandPayload{Action: "self_destruct"})
	assert.False(t, ok)
	assert.Equal(t, "unknown_command", reason)

	ok, _ = init.ShouldStart(envelope.UserCommandPayload{Action: " STOP_ALL "})
	assert.True(t, ok)

	out, err := init.Transform(envelope.UserCommandPayload{Action: "Stop_All", Args: map[string]string{"scope": "spot"}})
	require.NoError(t, err)
	assert.Equal(t, CommandStopAll, out.(ParsedCommand).Action)
	assert.Equal(t, "spot", out.(ParsedCommand).Args["scope"])
}

func TestMalformedPayloadVetoed(t *testing.T) {
	bus := eventbus.NewInMemoryBus(nil)
	sink := newSignalSink(bus)
	init := NewUserCommandInitiator()

	broadcast := &eventbus.StimulusBroadcast{
		FlowID:   envelope.NewFlowID(),
		Category: envelope.CategoryUserCommand,
		Payload:  42,
	}
	require.NoError(t, HandleBroadcast(context.Background(), bus, nil, init, broadcast))

	require.Equal(t, 1, sink.completedCount())
	assert.Equal(t, envelope.TerminalReasonNotStarted, sink.completed[0].Reason)
	assert.Equal(t, "malformed_command_payload", sink.completed[0].Error)
}

func TestValidateExclusive(t *testing.T) {
	require.NoError(t, ValidateExclusive(
		NewTickWindowInitiator(3),
		NewNewsFilterInitiator(nil),
		NewScheduledTaskInitiator(),
		NewUserCommandInitiator(),
	))

	err := ValidateExclusive(NewTickWindowInitiator(3), NewTickWindowInitiator(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick")
}
