// Package storage defines the task persistence contract and the task row
// shape shared by every store implementation.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage connects the task service to a backend store (in-memory,
// Postgres, ...). Please use the error types provided.
type Storage interface {
	// GetTask retrieves a single task by id.
	GetTask(ctx context.Context, id string) (*Task, error)
	// InsertTask persists a new task and returns the stored row.
	// Implementations assign ID/CreatedAt/UpdatedAt when unset.
	InsertTask(ctx context.Context, t *Task) (*Task, error)
	// UpdateTask applies a partial update to a task by id and returns the
	// updated row.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error)
	// ListTasks retrieves tasks matching the filter.
	ListTasks(ctx context.Context, filter ListFilter) ([]Task, error)
	// DeleteTask removes a task by id.
	DeleteTask(ctx context.Context, id string) error
}

// Task is one row of the task table. Recurrence fields follow a strict
// ownership split: a series root (IsRecurring true, no parent) owns the
// rule and exception list; a generated instance carries only its parent
// reference and the occurrence date it represents.
type Task struct {
	ID string `json:"id"`

	// OwnerID is the creating user. Tasks without a workspace are
	// personal: only the owner may touch them.
	OwnerID     string `json:"owner_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Status is an open set; only "done" triggers recurrence logic.
	Status string `json:"status"`

	// Due is the calendar date (YYYY-MM-DD, no time-of-day) the task is
	// scheduled for. On a series root it anchors the next projection.
	Due *string `json:"due,omitempty"`

	// IsRecurring is true only on a series root. Cleared when the series
	// ends; a cleared root never produces instances again.
	IsRecurring bool `json:"is_recurring"`

	// RecurrenceRule is the stored rule string, present only on roots.
	RecurrenceRule *string `json:"recurrence_rule,omitempty"`

	// RecurrenceParentID links a generated instance to its root. A task
	// is never both a root and an instance.
	RecurrenceParentID *string `json:"recurrence_parent_id,omitempty"`

	// RecurrenceDate is the occurrence date an instance represents,
	// recorded against the parent when the occurrence is excluded.
	RecurrenceDate *string `json:"recurrence_date,omitempty"`

	// RecurrenceExceptions lists excluded occurrence dates (YYYY-MM-DD),
	// owned by the root and append-only from the completion path.
	RecurrenceExceptions []string `json:"recurrence_exceptions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task statuses this service assigns. The column itself is an open set.
const (
	StatusTodo = "todo"
	StatusDone = "done"
)

// TaskPatch is a partial update. A nil pointer means "no change"; for the
// nullable string fields an empty string clears the value.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Assignees   *[]string `json:"assignees,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Due         *string   `json:"due,omitempty"`

	IsRecurring          *bool     `json:"is_recurring,omitempty"`
	RecurrenceRule       *string   `json:"recurrence_rule,omitempty"`
	RecurrenceExceptions *[]string `json:"recurrence_exceptions,omitempty"`
}

// ListFilter narrows ListTasks results. Zero values mean "don't filter".
type ListFilter struct {
	OwnerID     string
	WorkspaceID string

	// Status: "" | "all" | "todo" | "done" | "due_today" | "overdue" | "upcoming"
	Status string

	// RecurringOnly keeps only series roots.
	RecurringOnly bool
}

var (
	// ErrNotFound is returned when a requested task doesn't exist.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidInput is returned when the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input parameters")
	// ErrConflict is returned when a write conflicts with an existing row.
	ErrConflict = errors.New("task conflict")
	// ErrStorageUnavailable is returned when the backend is unreachable.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsRoot reports whether the task is a recurring series root.
func (t *Task) IsRoot() bool {
	return t.IsRecurring && t.RecurrenceParentID == nil
}

// IsInstance reports whether the task is a generated series instance.
func (t *Task) IsInstance() bool {
	return t.RecurrenceParentID != nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	out := *t
	out.Assignees = append([]string(nil), t.Assignees...)
	out.Tags = append([]string(nil), t.Tags...)
	out.RecurrenceExceptions = append([]string(nil), t.RecurrenceExceptions...)
	out.Due = cloneString(t.Due)
	out.RecurrenceRule = cloneString(t.RecurrenceRule)
	out.RecurrenceParentID = cloneString(t.RecurrenceParentID)
	out.RecurrenceDate = cloneString(t.RecurrenceDate)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
