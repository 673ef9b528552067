// Package memory provides an in-memory Storage implementation, useful for
// tests and single-node deployments without a database.
package memory

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-app/taskd/storage"
)

// Store implements storage.Storage backed by a map.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*storage.Task
	logger *slog.Logger
	now    func() time.Time
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

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new in-memory task store.
func New(opts ...Option) *Store {
	s := &Store{
		tasks:  make(map[string]*storage.Task),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetTask(_ context.Context, id string) (*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) InsertTask(_ context.Context, t *storage.Task) (*storage.Task, error) {
	if t == nil {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := t.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	} else if _, exists := s.tasks[stored.ID]; exists {
		return nil, storage.ErrConflict
	}
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = storage.StatusTodo
	}

	s.tasks[stored.ID] = stored
	s.logger.Debug("task inserted", "id", stored.ID, "title", stored.Title)
	return stored.Clone(), nil
}

func (s *Store) UpdateTask(_ context.Context, id string, patch storage.TaskPatch) (*storage.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	updated := t.Clone()
	applyPatch(updated, patch)
	updated.UpdatedAt = s.now()

	s.tasks[id] = updated
	s.logger.Debug("task updated", "id", id)
	return updated.Clone(), nil
}

func (s *Store) ListTasks(_ context.Context, filter storage.ListFilter) ([]storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := s.now().UTC().Format("2006-01-02")

	out := make([]storage.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matches(t, filter, today) {
			out = append(out, *t.Clone())
		}
	}

	// Due soonest first, undated last, then most recently updated.
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Due, out[j].Due
		switch {
		case di == nil && dj == nil:
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		case di == nil:
			return false
		case dj == nil:
			return true
		case *di != *dj:
			return *di < *dj
		default:
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
	})

	return out, nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func matches(t *storage.Task, filter storage.ListFilter, today string) bool {
	if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
		return false
	}
	if filter.WorkspaceID != "" && t.WorkspaceID != filter.WorkspaceID {
		return false
	}
	if filter.RecurringOnly && !t.IsRoot() {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(filter.Status)) {
	case "", "all":
		return true
	case "due_today":
		return t.Status != storage.StatusDone && t.Due != nil && *t.Due == today
	case "overdue":
		// YYYY-MM-DD compares correctly as a string.
		return t.Status != storage.StatusDone && t.Due != nil && *t.Due < today
	case "upcoming":
		return t.Status != storage.StatusDone && t.Due != nil && *t.Due > today
	default:
		return t.Status == filter.Status
	}
}

func applyPatch(t *storage.Task, p storage.TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Assignees != nil {
		t.Assignees = append([]string(nil), (*p.Assignees)...)
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}

	// Nullable string fields: empty string clears.
	if p.Due != nil {
		if *p.Due == "" {
			t.Due = nil
		} else {
			v := *p.Due
			t.Due = &v
		}
	}
	if p.RecurrenceRule != nil {
		if *p.RecurrenceRule == "" {
			t.RecurrenceRule = nil
		} else {
			v := *p.RecurrenceRule
			t.RecurrenceRule = &v
		}
	}

	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.RecurrenceExceptions != nil {
		t.RecurrenceExceptions = append([]string(nil), (*p.RecurrenceExceptions)...)
	}
}
