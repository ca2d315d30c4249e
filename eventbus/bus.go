package eventbus

import (
	"context"
	"sort"
	"sync"
)

// InMemoryBus is the single-process implementation of Bus.
//
// Thread-safe. Fan-out runs subscribers concurrently and Publish returns
// only after every subscriber has finished, so a publisher that needs
// happens-before ordering with its consumers gets it for free.
//
// Usage:
//
//	bus := NewInMemoryBus(logger)
//	unsub := bus.Subscribe(SignalStimulusBroadcast, handler)
//	defer unsub()
//	bus.Publish(ctx, &StimulusBroadcast{...})
type InMemoryBus struct {
	subscribers map[string][]*subscription
	middleware  []Middleware
	logger      Logger
	nextID      uint64
	mu          sync.RWMutex
}

// subscription pairs a handler with a stable identity so unsubscribe can
// remove exactly the handler it was issued for.
type subscription struct {
	id      uint64
	handler HandlerFunc
}

// NewInMemoryBus creates an empty bus. logger may be nil.
func NewInMemoryBus(logger Logger) *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string][]*subscription),
		middleware:  make([]Middleware, 0),
		logger:      logger,
	}
}

// Publish fans a signal out to all subscribers of its name.
// Subscriber errors are logged and reported to middleware but do not stop
// other subscribers; Publish itself returns a middleware abort error only.
func (b *InMemoryBus) Publish(ctx context.Context, sig Signal) error {
	name := sig.SignalName()

	processed, err := b.runMiddlewareBefore(ctx, sig)
	if err != nil {
		return NewPublishAbortedError(name, err)
	}
	if processed == nil {
		if b.logger != nil {
			b.logger.Debug("signal_aborted_by_middleware", "signal", name)
		}
		return nil
	}

	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers[name]))
	copy(subs, b.subscribers[name])
	b.mu.RUnlock()

	if len(subs) == 0 {
		if b.logger != nil {
			b.logger.Debug("signal_without_subscribers", "signal", name)
		}
		b.runMiddlewareAfter(ctx, processed, nil)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func(idx int, s *subscription) {
			defer wg.Done()
			if err := s.handler(ctx, processed); err != nil {
				errs[idx] = err
				if b.logger != nil {
					b.logger.Warn("subscriber_failed", "signal", name, "error", err.Error())
				}
			}
		}(i, sub)
	}
	wg.Wait()

	var firstErr error
	for _, e := range errs {
		if e != nil {
			firstErr = &BusError{Message: "subscriber failed for " + name, Cause: e}
			break
		}
	}
	b.runMiddlewareAfter(ctx, processed, firstErr)
	return nil
}

// Subscribe registers a handler and returns its unsubscribe function.
func (b *InMemoryBus) Subscribe(signalName string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	b.subscribers[signalName] = append(b.subscribers[signalName], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[signalName]
		for i, s := range subs {
			if s.id == sub.id {
				b.subscribers[signalName] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// AddMiddleware appends middleware to the chain.
func (b *InMemoryBus) AddMiddleware(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// HasSubscribers reports whether any handler listens on the name.
func (b *InMemoryBus) HasSubscribers(signalName string) bool {
	return b.SubscriberCount(signalName) > 0
}

// SubscriberCount returns the number of handlers for the name.
func (b *InMemoryBus) SubscriberCount(signalName string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[signalName])
}

// RegisteredSignals returns a sorted list of names with subscribers.
func (b *InMemoryBus) RegisteredSignals() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.subscribers))
	for name, subs := range b.subscribers {
		if len(subs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clear removes all subscribers and middleware.
func (b *InMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]*subscription)
	b.middleware = make([]Middleware, 0)
}

func (b *InMemoryBus) runMiddlewareBefore(ctx context.Context, sig Signal) (Signal, error) {
	b.mu.RLock()
	mws := make([]Middleware, len(b.middleware))
	copy(mws, b.middleware)
	b.mu.RUnlock()

	current := sig
	for _, mw := range mws {
		next, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func (b *InMemoryBus) runMiddlewareAfter(ctx context.Context, sig Signal, err error) {
	b.mu.RLock()
	mws := make([]Middleware, len(b.middleware))
	copy(mws, b.middleware)
	b.mu.RUnlock()

	// Reverse order, mirroring the before chain.
	for i := len(mws) - 1; i >= 0; i-- {
		mws[i].After(ctx, sig, err)
	}
}

// Ensure InMemoryBus implements Bus.
var _ Bus = (*InMemoryBus)(nil)
