package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// SubmitFunc hands a fired task's stimulus to the lifecycle coordinator.
type SubmitFunc func(stimulus envelope.Stimulus) error

// ErrServiceRunning is returned by Start when the service already runs.
var ErrServiceRunning = errors.New("timer service already started")

// Service polls the task store at a fixed interval and submits due tasks
// as scheduled-task stimuli. A task stays in the store until its stimulus
// is accepted, so a full queue only delays the task to the next poll.
// Recurring tasks are moved to their next due time after firing.
type Service struct {
	store    Store
	submit   SubmitFunc
	logger   eventbus.Logger
	interval time.Duration

	// now is swappable for tests.
	now func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// NewService creates a poller over the given store. Interval must be
// positive.
func NewService(store Store, submit SubmitFunc, logger eventbus.Logger, interval time.Duration) (*Service, error) {
	if store == nil {
		return nil, errors.New("timer service needs a store")
	}
	if submit == nil {
		return nil, errors.New("timer service needs a submit function")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("timer poll interval must be positive, got %s", interval)
	}
	return &Service{
		store:    store,
		submit:   submit,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Start launches the poll loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrServiceRunning
	}
	s.started = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.pollLoop(ctx)

	if s.logger != nil {
		s.logger.Info("timer_service_started", "poll_interval", s.interval.String())
	}
	return nil
}

// Stop halts the poll loop and waits for it to exit. Safe to call more
// than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
}

func (s *Service) pollLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll fires every task due at the time of the call. Exported so the
// loop and tests share one code path.
func (s *Service) Poll(ctx context.Context) {
	now := s.now().UTC()
	tasks, err := s.store.Due(ctx, now)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("task_poll_failed", "error", err.Error())
		}
		return
	}

	for _, task := range tasks {
		s.fire(ctx, task, now)
	}
}

func (s *Service) fire(ctx context.Context, task Task, now time.Time) {
	stimulus := envelope.NewStimulus(envelope.CategoryTimerTask, envelope.ScheduledTaskPayload{
		TaskID:    task.ID,
		Action:    task.Action,
		ExpiresAt: task.ExpiresAt,
		Params:    task.Params,
	}, task.Priority)

	if err := s.submit(stimulus); err != nil {
		// Leave the row in place; the next poll retries it.
		if s.logger != nil {
			s.logger.Warn("task_submit_deferred",
				"task_id", task.ID,
				"action", task.Action,
				"error", err.Error())
		}
		return
	}

	if s.logger != nil {
		s.logger.Debug("task_fired",
			"task_id", task.ID,
			"action", task.Action,
			"recurring", task.Recurrence > 0)
	}

	if task.Recurrence > 0 {
		next := task.DueAt.Add(task.Recurrence)
		// Skip occurrences missed while the service was down.
		for !next.After(now) {
			next = next.Add(task.Recurrence)
		}
		if err := s.store.Reschedule(ctx, task.ID, next); err != nil && s.logger != nil {
			s.logger.Error("task_reschedule_failed", "task_id", task.ID, "error", err.Error())
		}
		return
	}

	if err := s.store.Complete(ctx, task.ID); err != nil && s.logger != nil {
		s.logger.Error("task_complete_failed", "task_id", task.ID, "error", err.Error())
	}
}
