package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// waitUntil polls a condition with a deadline.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

// broadcastRecorder captures stimulus broadcasts and optionally completes
// each flow immediately.
type broadcastRecorder struct {
	mu           sync.Mutex
	seen         []*eventbus.StimulusBroadcast
	autoComplete bool
	bus          eventbus.Bus
}

func (r *broadcastRecorder) handle(ctx context.Context, sig eventbus.Signal) error {
	broadcast := sig.(*eventbus.StimulusBroadcast)
	r.mu.Lock()
	r.seen = append(r.seen, broadcast)
	r.mu.Unlock()

	if r.autoComplete {
		return r.bus.Publish(ctx, &eventbus.FlowCompleted{
			FlowID: broadcast.FlowID,
			Reason: envelope.TerminalReasonCompleted,
		})
	}
	return nil
}

func (r *broadcastRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *broadcastRecorder) payloads() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, 0, len(r.seen))
	for _, b := range r.seen {
		out = append(out, b.Payload)
	}
	return out
}

func (r *broadcastRecorder) flowID(i int) envelope.FlowID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[i].FlowID
}

func newTestSetup(t *testing.T, cfg Config, autoComplete bool) (*Coordinator, *eventbus.InMemoryBus, *broadcastRecorder) {
	t.Helper()
	bus := eventbus.NewInMemoryBus(nil)
	recorder := &broadcastRecorder{autoComplete: autoComplete, bus: bus}
	bus.Subscribe(eventbus.SignalStimulusBroadcast, recorder.handle)
	coord := New(cfg, bus, nil, nil)
	return coord, bus, recorder
}

func fastConfig() Config {
	return Config{
		QueueCapacity: 16,
		RetryDelay:    time.Millisecond,
		FlowTimeout:   time.Second,
	}
}

// =============================================================================
// DISPATCH TESTS
// =============================================================================

func TestDispatchBroadcastsAndReturnsToIdle(t *testing.T) {
	coord, _, recorder := newTestSetup(t, fastConfig(), true)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "t1", envelope.PriorityNormal)))

	waitUntil(t, time.Second, func() bool { return recorder.count() == 1 }, "broadcast delivered")
	waitUntil(t, time.Second, func() bool { return coord.State() == envelope.FlowStateIdle }, "back to idle")
	assert.Equal(t, 0, coord.QueueDepth())
	assert.Equal(t, envelope.CategoryTick, recorder.seen[0].Category)
	assert.NotEmpty(t, recorder.seen[0].FlowID)
}

func TestPriorityOrdering(t *testing.T) {
	// NORMAL(t1), CRITICAL(t2), NORMAL(t3) must dispatch as t2, t1, t3.
	coord, _, recorder := newTestSetup(t, fastConfig(), true)

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "t1", envelope.PriorityNormal)))
	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryUserCommand, "t2", envelope.PriorityCritical)))
	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "t3", envelope.PriorityNormal)))

	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	waitUntil(t, time.Second, func() bool { return recorder.count() == 3 }, "all flows dispatched")
	assert.Equal(t, []any{"t2", "t1", "t3"}, recorder.payloads())
}

func TestFIFOWithinPriorityLevel(t *testing.T) {
	coord, _, recorder := newTestSetup(t, fastConfig(), true)

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "a", envelope.PriorityNormal)))
	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "b", envelope.PriorityNormal)))

	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	waitUntil(t, time.Second, func() bool { return recorder.count() == 2 }, "both flows dispatched")
	assert.Equal(t, []any{"a", "b"}, recorder.payloads())
}

func TestSingleFlightInvariant(t *testing.T) {
	// A second stimulus must stay queued while a flow is in flight, even at
	// higher priority. This is spec'd as the stop-all-behind-a-tick case.
	coord, bus, recorder := newTestSetup(t, fastConfig(), false)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "tick", envelope.PriorityNormal)))
	waitUntil(t, time.Second, func() bool { return recorder.count() == 1 }, "first flow dispatched")

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryUserCommand, "stop_all", envelope.PriorityCritical)))

	// The command must not preempt the in-flight flow.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, recorder.count())
	assert.Equal(t, envelope.FlowStateProcessing, coord.State())
	assert.Equal(t, 1, coord.QueueDepth())

	// Completing the tick flow releases the queued command.
	require.NoError(t, bus.Publish(context.Background(), &eventbus.FlowCompleted{
		FlowID: recorder.flowID(0),
		Reason: envelope.TerminalReasonCompleted,
	}))
	waitUntil(t, time.Second, func() bool { return recorder.count() == 2 }, "queued command dispatched")
	assert.Equal(t, "stop_all", recorder.payloads()[1])
}

// =============================================================================
// COMPLETION CORRELATION TESTS
// =============================================================================

func TestStaleCompletionDiscarded(t *testing.T) {
	coord, bus, recorder := newTestSetup(t, fastConfig(), false)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "tick", envelope.PriorityNormal)))
	waitUntil(t, time.Second, func() bool { return recorder.count() == 1 }, "flow dispatched")
	active := coord.ActiveFlow()

	// Completion for some other flow identifier must not release the gate.
	require.NoError(t, bus.Publish(context.Background(), &eventbus.FlowCompleted{
		FlowID: envelope.NewFlowID(),
		Reason: envelope.TerminalReasonCompleted,
	}))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, envelope.FlowStateProcessing, coord.State())
	assert.Equal(t, active, coord.ActiveFlow())

	require.NoError(t, bus.Publish(context.Background(), &eventbus.FlowCompleted{
		FlowID: active,
		Reason: envelope.TerminalReasonCompleted,
	}))
	waitUntil(t, time.Second, func() bool { return coord.State() == envelope.FlowStateIdle }, "back to idle")
}

func TestDuplicateCompletionIsIdempotent(t *testing.T) {
	coord, bus, recorder := newTestSetup(t, fastConfig(), false)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "tick", envelope.PriorityNormal)))
	waitUntil(t, time.Second, func() bool { return recorder.count() == 1 }, "flow dispatched")
	active := recorder.flowID(0)

	done := &eventbus.FlowCompleted{FlowID: active, Reason: envelope.TerminalReasonCompleted}
	require.NoError(t, bus.Publish(context.Background(), done))
	waitUntil(t, time.Second, func() bool { return coord.State() == envelope.FlowStateIdle }, "back to idle")

	// Replay of the same terminal signal: no state change, no crash.
	require.NoError(t, bus.Publish(context.Background(), done))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, envelope.FlowStateIdle, coord.State())
	assert.Equal(t, 1, recorder.count())
}

// =============================================================================
// WATCHDOG TESTS
// =============================================================================

func TestWatchdogFailsStuckFlow(t *testing.T) {
	bus := eventbus.NewInMemoryBus(nil)
	recorder := &broadcastRecorder{bus: bus}
	bus.Subscribe(eventbus.SignalStimulusBroadcast, recorder.handle)

	var mu sync.Mutex
	var fatalFlow envelope.FlowID
	var fatalReason envelope.TerminalReason
	coord := New(Config{
		QueueCapacity: 16,
		RetryDelay:    time.Millisecond,
		FlowTimeout:   20 * time.Millisecond,
	}, bus, nil, func(flowID envelope.FlowID, reason envelope.TerminalReason) {
		mu.Lock()
		fatalFlow = flowID
		fatalReason = reason
		mu.Unlock()
	})
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	// Nothing completes the flow; the watchdog must.
	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "tick", envelope.PriorityNormal)))

	waitUntil(t, time.Second, func() bool { return coord.State() == envelope.FlowStateIdle }, "watchdog reset")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, recorder.flowID(0), fatalFlow)
	assert.Equal(t, envelope.TerminalReasonStuck, fatalReason)
}

func TestCoordinatorServesQueueAfterWatchdog(t *testing.T) {
	bus := eventbus.NewInMemoryBus(nil)
	recorder := &broadcastRecorder{bus: bus}
	bus.Subscribe(eventbus.SignalStimulusBroadcast, recorder.handle)
	coord := New(Config{
		QueueCapacity: 16,
		RetryDelay:    time.Millisecond,
		FlowTimeout:   20 * time.Millisecond,
	}, bus, nil, nil)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "first", envelope.PriorityNormal)))
	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "second", envelope.PriorityNormal)))

	waitUntil(t, time.Second, func() bool { return recorder.count() == 2 }, "second flow dispatched after watchdog")
	assert.Equal(t, []any{"first", "second"}, recorder.payloads())
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmitInvalidStimulus(t *testing.T) {
	coord, _, _ := newTestSetup(t, fastConfig(), true)

	err := coord.Submit(envelope.Stimulus{Category: "earthquake", Priority: envelope.PriorityNormal})
	require.Error(t, err)
	assert.Equal(t, 0, coord.QueueDepth())
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueCapacity = 1
	coord, _, _ := newTestSetup(t, cfg, true)
	// Not started, so nothing drains the queue.

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "a", envelope.PriorityNormal)))
	err := coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "b", envelope.PriorityNormal))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestSubmitWhileDraining(t *testing.T) {
	coord, _, _ := newTestSetup(t, fastConfig(), true)
	require.NoError(t, coord.Start(context.Background()))
	require.NoError(t, coord.Shutdown(context.Background()))

	err := coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "late", envelope.PriorityNormal))
	assert.ErrorIs(t, err, ErrDraining)
	assert.Equal(t, envelope.FlowStateDraining, coord.State())
}

func TestShutdownDiscardsQueuedStimuli(t *testing.T) {
	coord, _, _ := newTestSetup(t, fastConfig(), true)

	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "a", envelope.PriorityNormal)))
	require.NoError(t, coord.Submit(envelope.NewStimulus(envelope.CategoryTick, "b", envelope.PriorityNormal)))
	require.NoError(t, coord.Start(context.Background()))
	require.NoError(t, coord.Shutdown(context.Background()))

	assert.Equal(t, 0, coord.QueueDepth())
}

func TestStartTwice(t *testing.T) {
	coord, _, _ := newTestSetup(t, fastConfig(), true)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Shutdown(context.Background())

	assert.ErrorIs(t, coord.Start(context.Background()), ErrAlreadyStarted)
}
