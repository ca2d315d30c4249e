package coordinator

import "errors"

var (
	// ErrDraining is returned by Submit once shutdown has begun.
	ErrDraining = errors.New("coordinator is draining, stimulus rejected")

	// ErrQueueFull is returned by Submit when the bounded queue is at
	// capacity. Submission never blocks the caller.
	ErrQueueFull = errors.New("stimulus queue is full")

	// ErrAlreadyStarted is returned by Start when the coordinator's loops
	// are already running.
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrNotStarted is returned by Shutdown before Start.
	ErrNotStarted = errors.New("coordinator not started")
)
