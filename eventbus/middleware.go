// Middleware implementations for the event bus.
//
// Middleware intercepts signals before/after fan-out for cross-cutting
// concerns.
//
// Available Middleware:
//   - LoggingMiddleware: structured logging of all signal traffic
//   - DeprecatedSignalMiddleware: blocks retired signal names at runtime
package eventbus

import (
	"context"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all signal traffic.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Before logs signal receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, sig Signal) (Signal, error) {
	if m.logger != nil {
		m.logger.Debug("signal_published", "signal", sig.SignalName())
	}
	return sig, nil
}

// After logs fan-out completion.
func (m *LoggingMiddleware) After(ctx context.Context, sig Signal, err error) {
	if m.logger == nil {
		return
	}
	if err != nil {
		m.logger.Warn("signal_handled_with_error", "signal", sig.SignalName(), "error", err.Error())
	} else {
		m.logger.Debug("signal_handled", "signal", sig.SignalName())
	}
}

// =============================================================================
// DEPRECATED SIGNAL MIDDLEWARE
// =============================================================================

// DeprecatedSignalMiddleware blocks signals published under a retired name.
// The wiring table ships the deprecated map; anything publishing an old name
// is a stale component that must be upgraded, so the publish is dropped and
// the replacement name is logged.
type DeprecatedSignalMiddleware struct {
	// deprecated maps retired signal name to its replacement.
	deprecated map[string]string
	logger     Logger
}

// NewDeprecatedSignalMiddleware creates a new DeprecatedSignalMiddleware.
func NewDeprecatedSignalMiddleware(deprecated map[string]string, logger Logger) *DeprecatedSignalMiddleware {
	m := &DeprecatedSignalMiddleware{
		deprecated: make(map[string]string, len(deprecated)),
		logger:     logger,
	}
	for old, replacement := range deprecated {
		m.deprecated[old] = replacement
	}
	return m
}

// Before drops signals carrying a deprecated name.
func (m *DeprecatedSignalMiddleware) Before(ctx context.Context, sig Signal) (Signal, error) {
	name := sig.SignalName()
	if replacement, retired := m.deprecated[name]; retired {
		if m.logger != nil {
			m.logger.Warn("deprecated_signal_dropped", "signal", name, "replacement", replacement)
		}
		return nil, nil
	}
	return sig, nil
}

// After is a no-op.
func (m *DeprecatedSignalMiddleware) After(ctx context.Context, sig Signal, err error) {}

// Ensure all middleware types implement Middleware interface.
var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*DeprecatedSignalMiddleware)(nil)
)
