package timer

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

//go:embed schema.sql
var schemaSQL string

// Task is one scheduled entry. A zero Recurrence makes it one-shot; a
// positive Recurrence reschedules it by that interval after each firing.
type Task struct {
	ID         string
	Action     string
	Params     map[string]string
	Priority   envelope.Priority
	DueAt      time.Time
	Recurrence time.Duration
	ExpiresAt  time.Time // zero means no expiry
	CreatedAt  time.Time
}

// Validate checks the task before persisting.
func (t Task) Validate() error {
	if t.Action == "" {
		return fmt.Errorf("scheduled task needs an action")
	}
	if t.DueAt.IsZero() {
		return fmt.Errorf("scheduled task %q needs a due time", t.Action)
	}
	if t.Recurrence < 0 {
		return fmt.Errorf("scheduled task %q has negative recurrence", t.Action)
	}
	switch t.Priority {
	case envelope.PriorityCritical, envelope.PriorityHigh, envelope.PriorityNormal, envelope.PriorityLow:
	default:
		return fmt.Errorf("scheduled task %q has unknown priority %q", t.Action, t.Priority)
	}
	return nil
}

// Store persists scheduled tasks across restarts.
type Store interface {
	// Schedule inserts a task and returns its identifier.
	Schedule(ctx context.Context, task Task) (string, error)
	// Due returns every task whose due time is at or before now, ordered
	// by due time.
	Due(ctx context.Context, now time.Time) ([]Task, error)
	// Complete removes a one-shot task after it fired.
	Complete(ctx context.Context, taskID string) error
	// Reschedule moves a recurring task to its next due time.
	Reschedule(ctx context.Context, taskID string, nextDue time.Time) error
	// Cancel removes a task that has not fired yet.
	Cancel(ctx context.Context, taskID string) error
	// Pending counts tasks still in the store.
	Pending(ctx context.Context) (int, error)
	Close() error
}

// SQLiteStore is the Store backed by a local SQLite file. The path
// ":memory:" gives an ephemeral store.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at dbPath and applies the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create task store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task store schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Schedule(ctx context.Context, task Task) (string, error) {
	if err := task.Validate(); err != nil {
		return "", err
	}
	if task.ID == "" {
		task.ID = "task_" + uuid.New().String()[:16]
	}
	if task.Params == nil {
		task.Params = map[string]string{}
	}
	params, err := json.Marshal(task.Params)
	if err != nil {
		return "", fmt.Errorf("encode task params: %w", err)
	}

	var expires sql.NullInt64
	if !task.ExpiresAt.IsZero() {
		expires = sql.NullInt64{Int64: task.ExpiresAt.UTC().Unix(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks
			(task_id, action, params, priority, due_at, recurrence_seconds, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Action, string(params), string(task.Priority),
		task.DueAt.UTC().Unix(), int64(task.Recurrence/time.Second),
		expires, time.Now().UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("insert scheduled task: %w", err)
	}
	return task.ID, nil
}

func (s *SQLiteStore) Due(ctx context.Context, now time.Time) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, action, params, priority, due_at, recurrence_seconds, expires_at, created_at
		FROM scheduled_tasks
		WHERE due_at <= ?
		ORDER BY due_at ASC`,
		now.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			task       Task
			params     string
			priority   string
			dueAt      int64
			recurrence int64
			expires    sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&task.ID, &task.Action, &params, &priority,
			&dueAt, &recurrence, &expires, &createdAt); err != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &task.Params); err != nil {
			return nil, fmt.Errorf("decode params for task %s: %w", task.ID, err)
		}
		task.Priority = envelope.Priority(priority)
		task.DueAt = time.Unix(dueAt, 0).UTC()
		task.Recurrence = time.Duration(recurrence) * time.Second
		if expires.Valid {
			task.ExpiresAt = time.Unix(expires.Int64, 0).UTC()
		}
		task.CreatedAt = time.Unix(createdAt, 0).UTC()
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) Complete(ctx context.Context, taskID string) error {
	return s.delete(ctx, taskID, "complete")
}

func (s *SQLiteStore) Cancel(ctx context.Context, taskID string) error {
	return s.delete(ctx, taskID, "cancel")
}

func (s *SQLiteStore) delete(ctx context.Context, taskID, op string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("%s task %s: %w", op, taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s task %s: not found", op, taskID)
	}
	return nil
}

func (s *SQLiteStore) Reschedule(ctx context.Context, taskID string, nextDue time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET due_at = ? WHERE task_id = ?`,
		nextDue.UTC().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("reschedule task %s: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("reschedule task %s: not found", taskID)
	}
	return nil
}

func (s *SQLiteStore) Pending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_tasks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return count, nil
}
