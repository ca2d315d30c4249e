// Package eventbus provides the in-process event router for the decision
// pipeline. Every component communicates exclusively through this bus: the
// lifecycle coordinator broadcasts one generic envelope per flow, initiators
// publish flow-start signals, planning specialists publish partial plans,
// and the phase coordinator publishes the aggregated request and the final
// execution directive.
//
// The bus is pure message delivery. It carries no business logic and no
// component holds a direct reference to another's internals.
package eventbus

import "context"

// Signal is the contract for every message delivered by the bus. A signal's
// name is its routing key; payloads are concrete structs in signals.go.
type Signal interface {
	// SignalName returns the routing key this signal is delivered under.
	SignalName() string
}

// HandlerFunc processes one delivered signal.
type HandlerFunc func(ctx context.Context, sig Signal) error

// Middleware intercepts signals before and after delivery. Used for logging
// and delivery metrics.
type Middleware interface {
	// Before is called before fan-out. Returning nil aborts delivery.
	Before(ctx context.Context, sig Signal) (Signal, error)

	// After is called once fan-out has finished, with the first subscriber
	// error if any occurred.
	After(ctx context.Context, sig Signal, err error)
}

// Logger is the bus's structured logging contract.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// Bus is the event router contract.
type Bus interface {
	// Publish fans a signal out to every subscriber of its name and returns
	// once all subscribers have run.
	Publish(ctx context.Context, sig Signal) error

	// Subscribe registers a handler for a signal name and returns an
	// unsubscribe function.
	Subscribe(signalName string, handler HandlerFunc) func()

	// AddMiddleware appends middleware, executed in registration order.
	AddMiddleware(mw Middleware)

	// HasSubscribers reports whether any handler listens on the name.
	HasSubscribers(signalName string) bool

	// SubscriberCount returns the number of handlers for the name.
	SubscriberCount(signalName string) int

	// RegisteredSignals returns every signal name with at least one handler.
	RegisteredSignals() []string

	// Clear removes all subscribers and middleware. Test helper.
	Clear()
}
