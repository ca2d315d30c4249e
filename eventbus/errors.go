package eventbus

import (
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// BusError is the base error type for eventbus errors.
type BusError struct {
	Message string
	Cause   error
}

func (e *BusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BusError) Unwrap() error {
	return e.Cause
}

// NoSubscriberError is raised when a signal requiring at least one
// subscriber is published into the void.
type NoSubscriberError struct {
	Signal string
}

func (e *NoSubscriberError) Error() string {
	return fmt.Sprintf("no subscriber registered for %s", e.Signal)
}

// NewNoSubscriberError creates a new NoSubscriberError.
func NewNoSubscriberError(signal string) *NoSubscriberError {
	return &NoSubscriberError{Signal: signal}
}

// UnknownSignalError is raised when a wiring route names a signal that is
// not part of the pipeline vocabulary.
type UnknownSignalError struct {
	Signal string
}

func (e *UnknownSignalError) Error() string {
	return fmt.Sprintf("unknown signal %s", e.Signal)
}

// NewUnknownSignalError creates a new UnknownSignalError.
func NewUnknownSignalError(signal string) *UnknownSignalError {
	return &UnknownSignalError{Signal: signal}
}

// PublishAbortedError is raised when middleware rejects a signal.
type PublishAbortedError struct {
	Signal string
	Cause  error
}

func (e *PublishAbortedError) Error() string {
	return fmt.Sprintf("publish of %s aborted: %v", e.Signal, e.Cause)
}

func (e *PublishAbortedError) Unwrap() error {
	return e.Cause
}

// NewPublishAbortedError creates a new PublishAbortedError.
func NewPublishAbortedError(signal string, cause error) *PublishAbortedError {
	return &PublishAbortedError{Signal: signal, Cause: cause}
}
