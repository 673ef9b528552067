// Package postgres provides the pgx-backed Storage implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lectern-app/taskd/storage"
)

const tasksTable = "tasks"

// Store implements storage.Storage backed by Postgres.
//
// The tasks table has no one-open-instance-per-root uniqueness constraint:
// two concurrent completions of the same root may each insert a successor.
// That permissive behavior is load-bearing for existing data.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Option represents a configuration option for the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Postgres-backed task store on an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the tasks table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return storage.ErrStorageUnavailable
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tasksTable + ` (
    id                    TEXT PRIMARY KEY,
    owner_id              TEXT NOT NULL DEFAULT '',
    workspace_id          TEXT NOT NULL DEFAULT '',
    title                 TEXT NOT NULL DEFAULT '',
    description           TEXT NOT NULL DEFAULT '',
    category              TEXT NOT NULL DEFAULT '',
    priority              TEXT NOT NULL DEFAULT '',
    assignees             TEXT[] NOT NULL DEFAULT '{}',
    tags                  TEXT[] NOT NULL DEFAULT '{}',
    status                TEXT NOT NULL DEFAULT 'todo',
    due                   TEXT,
    is_recurring          BOOLEAN NOT NULL DEFAULT FALSE,
    recurrence_rule       TEXT,
    recurrence_parent_id  TEXT,
    recurrence_date       TEXT,
    recurrence_exceptions TEXT[] NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON ` + tasksTable + ` (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON ` + tasksTable + ` (workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON ` + tasksTable + ` (status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON ` + tasksTable + ` (recurrence_parent_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure task schema: %w", err)
		}
	}
	return nil
}

const taskColumns = `id, owner_id, workspace_id, title, description, category, priority,
    assignees, tags, status, due, is_recurring, recurrence_rule,
    recurrence_parent_id, recurrence_date, recurrence_exceptions,
    created_at, updated_at`

func (s *Store) GetTask(ctx context.Context, id string) (*storage.Task, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM `+tasksTable+` WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) InsertTask(ctx context.Context, t *storage.Task) (*storage.Task, error) {
	if t == nil {
		return nil, storage.ErrInvalidInput
	}

	stored := t.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = storage.StatusTodo
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO `+tasksTable+` (`+taskColumns+`) VALUES (
    $1, $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11, $12, $13,
    $14, $15, $16,
    $17, $18
)`,
		stored.ID, stored.OwnerID, stored.WorkspaceID, stored.Title, stored.Description,
		stored.Category, stored.Priority,
		emptyIfNil(stored.Assignees), emptyIfNil(stored.Tags), stored.Status, stored.Due,
		stored.IsRecurring, stored.RecurrenceRule,
		stored.RecurrenceParentID, stored.RecurrenceDate, emptyIfNil(stored.RecurrenceExceptions),
		stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, storage.ErrConflict
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}

	s.logger.Debug("task inserted", "id", stored.ID, "title", stored.Title)
	return stored, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch storage.TaskPatch) (*storage.Task, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	sets := []string{}
	args := []any{}
	next := func() string {
		return "$" + strconv.Itoa(len(args))
	}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = "+next())
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	if patch.Assignees != nil {
		set("assignees", emptyIfNil(*patch.Assignees))
	}
	if patch.Tags != nil {
		set("tags", emptyIfNil(*patch.Tags))
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Due != nil {
		set("due", nullIfEmpty(*patch.Due))
	}
	if patch.IsRecurring != nil {
		set("is_recurring", *patch.IsRecurring)
	}
	if patch.RecurrenceRule != nil {
		set("recurrence_rule", nullIfEmpty(*patch.RecurrenceRule))
	}
	if patch.RecurrenceExceptions != nil {
		set("recurrence_exceptions", emptyIfNil(*patch.RecurrenceExceptions))
	}

	set("updated_at", time.Now())

	args = append(args, id)
	query := `UPDATE ` + tasksTable + ` SET ` + strings.Join(sets, ", ") +
		` WHERE id = ` + next() + ` RETURNING ` + taskColumns

	row := s.pool.QueryRow(ctx, query, args...)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, filter storage.ListFilter) ([]storage.Task, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OwnerID != "" {
		where = append(where, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.WorkspaceID != "" {
		where = append(where, "workspace_id = "+arg(filter.WorkspaceID))
	}
	if filter.RecurringOnly {
		where = append(where, "is_recurring AND recurrence_parent_id IS NULL")
	}

	today := time.Now().UTC().Format("2006-01-02")
	switch strings.ToLower(strings.TrimSpace(filter.Status)) {
	case "", "all":
	case "due_today":
		where = append(where, "status <> 'done' AND due = "+arg(today))
	case "overdue":
		where = append(where, "status <> 'done' AND due < "+arg(today))
	case "upcoming":
		where = append(where, "status <> 'done' AND due > "+arg(today))
	default:
		where = append(where, "status = "+arg(filter.Status))
	}

	query := `SELECT ` + taskColumns + ` FROM ` + tasksTable +
		` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY due ASC NULLS LAST, updated_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []storage.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+tasksTable+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanTask reads one task row in taskColumns order.
func scanTask(row pgx.Row) (*storage.Task, error) {
	var t storage.Task
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.WorkspaceID, &t.Title, &t.Description, &t.Category, &t.Priority,
		&t.Assignees, &t.Tags, &t.Status, &t.Due, &t.IsRecurring, &t.RecurrenceRule,
		&t.RecurrenceParentID, &t.RecurrenceDate, &t.RecurrenceExceptions,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
