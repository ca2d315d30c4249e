package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type submitRecorder struct {
	mu      sync.Mutex
	stimuli []envelope.Stimulus
	err     error
}

func (r *submitRecorder) submit(stimulus envelope.Stimulus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.stimuli = append(r.stimuli, stimulus)
	return nil
}

func (r *submitRecorder) all() []envelope.Stimulus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]envelope.Stimulus(nil), r.stimuli...)
}

func rebalanceTask(due time.Time, recurrence time.Duration) Task {
	return Task{
		Action:     "rebalance",
		Params:     map[string]string{"portfolio": "alpha"},
		Priority:   envelope.PriorityNormal,
		DueAt:      due,
		Recurrence: recurrence,
	}
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	due := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	task := rebalanceTask(due, time.Hour)
	task.ExpiresAt = due.Add(24 * time.Hour)
	id, err := store.Schedule(ctx, task)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tasks, err := store.Due(ctx, due)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	got := tasks[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "rebalance", got.Action)
	assert.Equal(t, map[string]string{"portfolio": "alpha"}, got.Params)
	assert.Equal(t, envelope.PriorityNormal, got.Priority)
	assert.True(t, got.DueAt.Equal(due))
	assert.Equal(t, time.Hour, got.Recurrence)
	assert.True(t, got.ExpiresAt.Equal(due.Add(24*time.Hour)))
}

func TestStoreDueFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	later, err := store.Schedule(ctx, rebalanceTask(now.Add(-time.Minute), 0))
	require.NoError(t, err)
	earlier, err := store.Schedule(ctx, rebalanceTask(now.Add(-time.Hour), 0))
	require.NoError(t, err)
	_, err = store.Schedule(ctx, rebalanceTask(now.Add(time.Hour), 0))
	require.NoError(t, err)

	tasks, err := store.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, earlier, tasks[0].ID)
	assert.Equal(t, later, tasks[1].ID)
}

func TestStoreCompleteRemovesTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Schedule(ctx, rebalanceTask(time.Now(), 0))
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx, id))
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	assert.Error(t, store.Complete(ctx, id))
	assert.Error(t, store.Cancel(ctx, "task_missing"))
}

func TestStoreRejectsInvalidTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Schedule(ctx, Task{DueAt: time.Now(), Priority: envelope.PriorityNormal})
	assert.Error(t, err, "missing action")

	task := rebalanceTask(time.Now(), 0)
	task.Priority = envelope.Priority("URGENT")
	_, err = store.Schedule(ctx, task)
	assert.Error(t, err, "unknown priority")
}

// =============================================================================
// SERVICE TESTS
// =============================================================================

func TestPollFiresDueTasksAsStimuli(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	id, err := store.Schedule(ctx, rebalanceTask(now.Add(-time.Second), 0))
	require.NoError(t, err)

	recorder := &submitRecorder{}
	service, err := NewService(store, recorder.submit, nil, time.Minute)
	require.NoError(t, err)
	service.now = func() time.Time { return now }

	service.Poll(ctx)

	stimuli := recorder.all()
	require.Len(t, stimuli, 1)
	assert.Equal(t, envelope.CategoryTimerTask, stimuli[0].Category)
	payload := stimuli[0].Payload.(envelope.ScheduledTaskPayload)
	assert.Equal(t, id, payload.TaskID)
	assert.Equal(t, "rebalance", payload.Action)

	// One-shot tasks are gone after firing.
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestPollReschedulesRecurringTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.Schedule(ctx, rebalanceTask(now.Add(-time.Second), time.Hour))
	require.NoError(t, err)

	recorder := &submitRecorder{}
	service, err := NewService(store, recorder.submit, nil, time.Minute)
	require.NoError(t, err)
	service.now = func() time.Time { return now }

	service.Poll(ctx)
	require.Len(t, recorder.all(), 1)

	// Still pending, but no longer due.
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	tasks, err := store.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	tasks, err = store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestRecurringTaskSkipsMissedOccurrences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	// Due three hours ago with an hourly recurrence: the next firing is
	// the upcoming top of the hour, not a burst of catch-up flows.
	_, err := store.Schedule(ctx, rebalanceTask(now.Add(-3*time.Hour), time.Hour))
	require.NoError(t, err)

	recorder := &submitRecorder{}
	service, err := NewService(store, recorder.submit, nil, time.Minute)
	require.NoError(t, err)
	service.now = func() time.Time { return now }

	service.Poll(ctx)
	require.Len(t, recorder.all(), 1)

	tasks, err := store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].DueAt.Equal(now.Add(time.Hour)))
}

func TestSubmitFailureKeepsTaskForRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.Schedule(ctx, rebalanceTask(now.Add(-time.Second), 0))
	require.NoError(t, err)

	recorder := &submitRecorder{err: context.DeadlineExceeded}
	service, err := NewService(store, recorder.submit, nil, time.Minute)
	require.NoError(t, err)
	service.now = func() time.Time { return now }

	service.Poll(ctx)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// Once submission succeeds the task drains.
	recorder.mu.Lock()
	recorder.err = nil
	recorder.mu.Unlock()
	service.Poll(ctx)

	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestServiceLifecycle(t *testing.T) {
	store := newTestStore(t)
	recorder := &submitRecorder{}

	service, err := NewService(store, recorder.submit, nil, 5*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, service.Start(context.Background()))
	assert.ErrorIs(t, service.Start(context.Background()), ErrServiceRunning)

	service.Stop()
	service.Stop()

	require.NoError(t, service.Start(context.Background()))
	service.Stop()
}

func TestNewServiceValidation(t *testing.T) {
	store := newTestStore(t)
	recorder := &submitRecorder{}

	_, err := NewService(nil, recorder.submit, nil, time.Second)
	assert.Error(t, err)
	_, err = NewService(store, nil, nil, time.Second)
	assert.Error(t, err)
	_, err = NewService(store, recorder.submit, nil, 0)
	assert.Error(t, err)
}
