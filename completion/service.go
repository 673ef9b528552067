// Package completion implements the workflow that runs when a task is
// marked done: a plain status change for ordinary tasks, and series
// advancement (successor creation, exception recording, or termination)
// for recurring ones.
package completion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/samber/mo"

	"github.com/lectern-app/taskd/recurrence"
	"github.com/lectern-app/taskd/storage"
)

// Options are the caller's completion flags. Both default to false; an
// empty request body is equivalent.
type Options struct {
	// OccurrenceOnly records the completed instance's date as an
	// exception on its series root, so future projections skip it.
	// Meaningful only for series instances.
	OccurrenceOnly bool

	// StopRecurrence terminates the series instead of projecting a next
	// occurrence. Meaningful only for series roots.
	StopRecurrence bool
}

// Outcome messages, one per completion path.
const (
	MessagePlainCompleted    = "task completed"
	MessageNextOccurrence    = "series completed and next occurrence created"
	MessageSeriesEnded       = "series completed, end of series"
	MessageInstanceCompleted = "instance completed"
	MessageRegenFailed       = "series completed, next occurrence could not be created"
)

// Outcome is the result of completing a task.
type Outcome struct {
	// Completed is the task that was marked done.
	Completed *storage.Task
	// Next is the newly created successor, or nil when none was made.
	Next *storage.Task
	// Message is a human-readable summary of which path was taken.
	Message string
	// SideEffectErr reports a failed successor insert or a failed
	// exception record on the root. The completion itself stands:
	// Completed is valid even when this is non-nil.
	SideEffectErr error
}

// Service orchestrates task completion against a Storage backend.
type Service struct {
	store  storage.Storage
	logger *slog.Logger
	now    func() time.Time
}

// Option represents a configuration option for the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests. The clock anchors
// projection for recurring tasks that have no due date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a completion service.
func New(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// shapeKind partitions tasks into the three completion behaviors. The
// combination of nullable recurrence fields is folded into this tag once
// at load time; the workflow dispatches on it instead of re-checking
// field combinations at every step.
type shapeKind int

const (
	shapePlain shapeKind = iota
	shapeRoot
	shapeInstance
)

type shape struct {
	kind shapeKind

	// rule is the root's interpreted rule; None means the series has no
	// further occurrences (absent, malformed, or unknown frequency).
	rule mo.Option[recurrence.Rule]

	// parentID and occurrenceDate are set for instances.
	parentID       string
	occurrenceDate *string
}

func classify(t *storage.Task) shape {
	switch {
	case t.RecurrenceParentID != nil:
		return shape{
			kind:           shapeInstance,
			parentID:       *t.RecurrenceParentID,
			occurrenceDate: t.RecurrenceDate,
		}
	case t.IsRecurring:
		ruleStr := ""
		if t.RecurrenceRule != nil {
			ruleStr = *t.RecurrenceRule
		}
		return shape{kind: shapeRoot, rule: recurrence.ParseRule(ruleStr)}
	default:
		return shape{kind: shapePlain}
	}
}

// Complete marks the task done and runs the recurrence workflow for its
// shape. Storage errors before the status change are returned as-is;
// failures of the follow-up side effect (successor insert, exception
// record) are reported in the Outcome without undoing the completion.
func (s *Service) Complete(ctx context.Context, id string, opts Options) (*Outcome, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sh := classify(task); sh.kind {
	case shapeRoot:
		return s.completeRoot(ctx, task, sh, opts)
	case shapeInstance:
		return s.completeInstance(ctx, task, sh, opts)
	default:
		return s.completePlain(ctx, task)
	}
}

func (s *Service) completePlain(ctx context.Context, task *storage.Task) (*Outcome, error) {
	done, err := s.markDone(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Completed: done, Message: MessagePlainCompleted}, nil
}

func (s *Service) completeRoot(ctx context.Context, task *storage.Task, sh shape, opts Options) (*Outcome, error) {
	if opts.StopRecurrence {
		done, err := s.endSeries(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("series stopped by caller", "task", task.ID)
		return &Outcome{Completed: done, Message: MessageSeriesEnded}, nil
	}

	rule, ok := sh.rule.Get()
	if !ok {
		// Uninterpretable rule reads as end-of-series by policy, not as
		// an error.
		done, err := s.endSeries(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("series ended, rule not interpretable", "task", task.ID)
		return &Outcome{Completed: done, Message: MessageSeriesEnded}, nil
	}

	next, ok := recurrence.NextOccurrence(rule, s.anchor(task), task.RecurrenceExceptions).Get()
	if !ok {
		done, err := s.endSeries(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("series ended, no next occurrence", "task", task.ID)
		return &Outcome{Completed: done, Message: MessageSeriesEnded}, nil
	}

	done, err := s.markDone(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	successor, err := s.store.InsertTask(ctx, successorOf(task, next))
	if err != nil {
		// Completion is authoritative even when regeneration fails; the
		// caller sees the done root plus the error detail.
		s.logger.Error("successor insert failed", "task", task.ID, "error", err)
		return &Outcome{
			Completed:     done,
			Message:       MessageRegenFailed,
			SideEffectErr: fmt.Errorf("create next occurrence: %w", err),
		}, nil
	}

	s.logger.Info("next occurrence created",
		"task", task.ID, "successor", successor.ID, "due", recurrence.FormatDate(next))
	return &Outcome{Completed: done, Next: successor, Message: MessageNextOccurrence}, nil
}

func (s *Service) completeInstance(ctx context.Context, task *storage.Task, sh shape, opts Options) (*Outcome, error) {
	done, err := s.markDone(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Completed: done, Message: MessageInstanceCompleted}

	// Only the occurrence-only path touches the root, and no instance
	// completion ever spawns a successor; regeneration authority lives
	// solely at the root.
	if !opts.OccurrenceOnly || sh.occurrenceDate == nil {
		return outcome, nil
	}

	if err := s.recordException(ctx, sh.parentID, *sh.occurrenceDate); err != nil {
		s.logger.Error("exception record failed",
			"task", task.ID, "root", sh.parentID, "error", err)
		outcome.SideEffectErr = fmt.Errorf("record exception on root: %w", err)
	}
	return outcome, nil
}

// recordException appends date to the root's exception list. The list is
// append-only from this path; an already-present date is left alone.
func (s *Service) recordException(ctx context.Context, rootID, date string) error {
	root, err := s.store.GetTask(ctx, rootID)
	if err != nil {
		return err
	}
	for _, ex := range root.RecurrenceExceptions {
		if ex == date {
			return nil
		}
	}
	exceptions := append(append([]string(nil), root.RecurrenceExceptions...), date)
	_, err = s.store.UpdateTask(ctx, rootID, storage.TaskPatch{
		RecurrenceExceptions: &exceptions,
	})
	return err
}

func (s *Service) markDone(ctx context.Context, id string) (*storage.Task, error) {
	status := storage.StatusDone
	return s.store.UpdateTask(ctx, id, storage.TaskPatch{Status: &status})
}

// endSeries marks the root done and retires it: is_recurring cleared and
// the rule removed, a terminal state that never produces instances again.
func (s *Service) endSeries(ctx context.Context, id string) (*storage.Task, error) {
	status := storage.StatusDone
	recurring := false
	clearRule := ""
	return s.store.UpdateTask(ctx, id, storage.TaskPatch{
		Status:         &status,
		IsRecurring:    &recurring,
		RecurrenceRule: &clearRule,
	})
}

// anchor is the date projection starts from: the root's due date, or the
// completion moment for an undated recurring task.
func (s *Service) anchor(task *storage.Task) time.Time {
	if task.Due != nil {
		if t, err := recurrence.ParseDate(*task.Due); err == nil {
			return t
		}
	}
	return recurrence.Day(s.now())
}

// successorOf builds the new current representative of the series: the
// root's shared fields verbatim, status todo, the computed date as due,
// and the same rule, flag, and exception list. The completed root stays
// behind as a historical record.
func successorOf(root *storage.Task, next time.Time) *storage.Task {
	successor := root.Clone()
	successor.ID = ""
	successor.Status = storage.StatusTodo
	due := recurrence.FormatDate(next)
	successor.Due = &due
	successor.CreatedAt = time.Time{}
	successor.UpdatedAt = time.Time{}
	return successor
}
