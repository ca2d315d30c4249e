// Package coordinator provides the lifecycle coordinator, the only component
// that owns stimulus envelopes and flow state.
//
// Implements the pipeline's admission control:
//   - Non-blocking submission into a bounded priority queue (Submit)
//   - Strict single-flight dispatch (one flow in flight, ever)
//   - Flow identifier minting on IDLE -> PROCESSING
//   - Completion correlation with a stale-signal guard
//   - Stuck-flow watchdog
//   - Draining shutdown
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
	"github.com/meridian-quant/flowcore/pipeline/observability"
)

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the coordinator's queue and loops.
type Config struct {
	// QueueCapacity bounds the stimulus queue. Submit returns ErrQueueFull
	// beyond it.
	QueueCapacity int
	// RetryDelay is the backpressure pause before the drain loop re-checks
	// a non-empty queue while a flow is in flight.
	RetryDelay time.Duration
	// FlowTimeout is the stuck-flow watchdog deadline. A flow that has not
	// produced its completion signal by then is failed and the coordinator
	// returns to idle.
	FlowTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 1024,
		RetryDelay:    5 * time.Millisecond,
		FlowTimeout:   30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.FlowTimeout <= 0 {
		c.FlowTimeout = def.FlowTimeout
	}
	return c
}

// FatalHandler is invoked when the watchdog declares a flow stuck. The
// supervisor decides whether to restart the process.
type FatalHandler func(flowID envelope.FlowID, reason envelope.TerminalReason)

// =============================================================================
// Coordinator
// =============================================================================

// activeFlow tracks the single flow in flight.
type activeFlow struct {
	id        envelope.FlowID
	category  envelope.Category
	startedAt time.Time
	span      trace.Span
	watchdog  *time.Timer
}

// Coordinator serializes flows: it pops the highest-priority stimulus only
// while idle, broadcasts it under a fresh flow identifier, and suspends
// dequeuing until the matching completion signal arrives.
//
// All state mutation happens under mu; downstream components only ever see
// the flow identifier.
type Coordinator struct {
	cfg     Config
	bus     eventbus.Bus
	logger  eventbus.Logger
	onFatal FatalHandler
	tracer  trace.Tracer

	mu       sync.Mutex
	state    envelope.FlowState
	draining bool
	queue    stimulusQueue
	seq      uint64
	active   *activeFlow

	wake        chan struct{}
	stop        chan struct{}
	done        chan struct{}
	unsubscribe func()
	started     bool
}

// New creates a coordinator in the idle state. logger and onFatal may be nil.
func New(cfg Config, bus eventbus.Bus, logger eventbus.Logger, onFatal FatalHandler) *Coordinator {
	return &Coordinator{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		logger:  logger,
		onFatal: onFatal,
		tracer:  otel.Tracer("flowcore/coordinator"),
		state:   envelope.FlowStateIdle,
		queue:   make(stimulusQueue, 0),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start subscribes to completion signals and launches the drain loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.unsubscribe = c.bus.Subscribe(eventbus.SignalFlowCompleted, c.handleCompletion)
	go c.drainLoop(ctx)

	if c.logger != nil {
		c.logger.Info("coordinator_started",
			"queue_capacity", c.cfg.QueueCapacity,
			"flow_timeout", c.cfg.FlowTimeout.String())
	}
	return nil
}

// Submit enqueues one stimulus. Never blocks: it returns ErrDraining after
// shutdown has begun and ErrQueueFull when the queue is at capacity.
func (c *Coordinator) Submit(stim envelope.Stimulus) error {
	if err := stim.Validate(); err != nil {
		observability.RecordStimulusRejected("invalid")
		return err
	}

	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		observability.RecordStimulusRejected("draining")
		return ErrDraining
	}
	if c.queue.Len() >= c.cfg.QueueCapacity {
		c.mu.Unlock()
		observability.RecordStimulusRejected("queue_full")
		if c.logger != nil {
			c.logger.Warn("stimulus_rejected_queue_full", "category", string(stim.Category))
		}
		return ErrQueueFull
	}

	c.seq++
	queued := stim
	c.queue.push(&queued, c.seq)
	depth := c.queue.Len()
	c.mu.Unlock()

	observability.RecordStimulusSubmitted(string(stim.Category), string(stim.Priority), depth)
	c.notify()
	return nil
}

// State returns the current flow state.
func (c *Coordinator) State() envelope.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueDepth returns the number of waiting stimuli.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// ActiveFlow returns the identifier of the flow in flight, or "" when idle.
func (c *Coordinator) ActiveFlow() envelope.FlowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// Shutdown transitions to draining, discards queued stimuli, and waits for
// an in-flight flow to finish (bounded by FlowTimeout and ctx).
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	discarded := c.queue.Len()
	c.queue = make(stimulusQueue, 0)
	inFlight := c.state == envelope.FlowStateProcessing
	if !inFlight {
		c.state = envelope.FlowStateDraining
	}
	c.mu.Unlock()

	observability.RecordQueueDepth(0)
	if c.logger != nil && discarded > 0 {
		c.logger.Warn("drain_discarded_stimuli", "count", discarded)
	}

	if inFlight {
		// Give the in-flight flow until the watchdog deadline; the watchdog
		// itself guarantees this wait is bounded.
		deadline := time.NewTimer(c.cfg.FlowTimeout)
		defer deadline.Stop()
		for {
			select {
			case <-ctx.Done():
				c.finishDrain()
				return ctx.Err()
			case <-deadline.C:
				c.finishDrain()
				return nil
			case <-time.After(time.Millisecond):
			}
			c.mu.Lock()
			settled := c.state != envelope.FlowStateProcessing
			c.mu.Unlock()
			if settled {
				break
			}
		}
		c.finishDrain()
	}

	close(c.stop)
	<-c.done
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.logger != nil {
		c.logger.Info("coordinator_stopped")
	}
	return nil
}

// finishDrain forces the draining state after the in-flight grace period.
func (c *Coordinator) finishDrain() {
	c.mu.Lock()
	if c.active != nil {
		c.active.watchdog.Stop()
		c.active.span.End()
		c.active = nil
	}
	c.state = envelope.FlowStateDraining
	c.mu.Unlock()
}

// =============================================================================
// Drain loop
// =============================================================================

// notify wakes the drain loop without blocking.
func (c *Coordinator) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) drainLoop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		c.dispatchReady(ctx)
	}
}

// dispatchReady pops and broadcasts stimuli for as long as the coordinator
// keeps returning to idle synchronously. If a flow stays in flight the loop
// re-arms a backpressure retry and yields.
func (c *Coordinator) dispatchReady(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.draining {
			c.mu.Unlock()
			return
		}
		if c.state != envelope.FlowStateIdle {
			pending := c.queue.Len() > 0
			busy := c.state == envelope.FlowStateProcessing
			c.mu.Unlock()
			if pending && busy {
				time.AfterFunc(c.cfg.RetryDelay, c.notify)
			}
			return
		}
		stim := c.queue.pop()
		if stim == nil {
			c.mu.Unlock()
			return
		}

		flowID := envelope.NewFlowID()
		_, span := c.tracer.Start(ctx, "flow",
			trace.WithAttributes(
				attribute.String("flow.id", string(flowID)),
				attribute.String("flow.category", string(stim.Category)),
				attribute.String("flow.priority", string(stim.Priority)),
			))
		c.state = envelope.FlowStateProcessing
		c.active = &activeFlow{
			id:        flowID,
			category:  stim.Category,
			startedAt: time.Now().UTC(),
			span:      span,
			watchdog:  time.AfterFunc(c.cfg.FlowTimeout, func() { c.watchdogFired(ctx, flowID) }),
		}
		depth := c.queue.Len()
		c.mu.Unlock()

		observability.RecordQueueDepth(depth)
		if c.logger != nil {
			c.logger.Info("flow_dispatched",
				"flow_id", string(flowID),
				"category", string(stim.Category),
				"priority", string(stim.Priority),
				"queue_depth", depth)
		}

		broadcast := &eventbus.StimulusBroadcast{
			FlowID:     flowID,
			Category:   stim.Category,
			Payload:    stim.Payload,
			Priority:   stim.Priority,
			EnqueuedAt: stim.EnqueuedAt,
		}
		if err := c.bus.Publish(ctx, broadcast); err != nil {
			if c.logger != nil {
				c.logger.Error("broadcast_failed", "flow_id", string(flowID), "error", err.Error())
			}
			c.completeFlow(flowID, envelope.TerminalReasonNotStarted, err.Error())
		}
	}
}

// =============================================================================
// Completion handling
// =============================================================================

// handleCompletion is the bus subscriber for flow completion signals.
func (c *Coordinator) handleCompletion(ctx context.Context, sig eventbus.Signal) error {
	completed, ok := sig.(*eventbus.FlowCompleted)
	if !ok {
		return nil
	}
	c.completeFlow(completed.FlowID, completed.Reason, completed.Error)
	return nil
}

// completeFlow applies a terminal signal to the active flow. Signals that do
// not match the flow in flight are logged and dropped so replays and
// watchdog races stay idempotent.
func (c *Coordinator) completeFlow(flowID envelope.FlowID, reason envelope.TerminalReason, errMsg string) {
	c.mu.Lock()
	if c.active == nil || c.active.id != flowID {
		c.mu.Unlock()
		observability.RecordStaleCompletion()
		if c.logger != nil {
			c.logger.Warn("stale_completion_discarded",
				"flow_id", string(flowID),
				"reason", string(reason))
		}
		return
	}

	flow := c.active
	flow.watchdog.Stop()
	c.active = nil
	if c.draining {
		c.state = envelope.FlowStateDraining
	} else if c.state == envelope.FlowStateProcessing {
		c.state = envelope.FlowStateIdle
	}
	c.mu.Unlock()

	durationMS := int(time.Since(flow.startedAt).Milliseconds())
	flow.span.SetAttributes(attribute.String("flow.terminal_reason", string(reason)))
	flow.span.End()
	observability.RecordFlowCompleted(string(flow.category), string(reason), durationMS)

	if c.logger != nil {
		if reason.IsFailure() {
			c.logger.Warn("flow_failed",
				"flow_id", string(flowID),
				"reason", string(reason),
				"error", errMsg,
				"duration_ms", durationMS)
		} else {
			c.logger.Info("flow_completed",
				"flow_id", string(flowID),
				"reason", string(reason),
				"duration_ms", durationMS)
		}
	}

	if reason == envelope.TerminalReasonStuck && c.onFatal != nil {
		c.onFatal(flowID, reason)
	}
	c.notify()
}

// watchdogFired fails the flow if it is still in flight. The completion
// signal goes over the bus so external observers see the failure too.
func (c *Coordinator) watchdogFired(ctx context.Context, flowID envelope.FlowID) {
	c.mu.Lock()
	stuck := c.active != nil && c.active.id == flowID
	c.mu.Unlock()
	if !stuck {
		return
	}

	if c.logger != nil {
		c.logger.Error("flow_watchdog_fired",
			"flow_id", string(flowID),
			"timeout", c.cfg.FlowTimeout.String())
	}
	_ = c.bus.Publish(ctx, &eventbus.FlowCompleted{
		FlowID: flowID,
		Reason: envelope.TerminalReasonStuck,
		Error:  "no completion signal before flow timeout",
	})
}
