package server

import (
	"net/http"

	"github.com/lectern-app/taskd/completion"
	"github.com/lectern-app/taskd/recurrence"
	"github.com/lectern-app/taskd/server/auth"
	"github.com/lectern-app/taskd/storage"
)

// completeRequest is the completion endpoint body. Both flags default to
// false; an empty body is valid.
type completeRequest struct {
	OccurrenceOnly bool `json:"occurrence_only"`
	StopRecurrence bool `json:"stop_recurrence"`
}

// completeResponse reports the outcome of a completion.
type completeResponse struct {
	Task *storage.Task `json:"task"`
	// NextTask is the newly created successor; explicitly null when the
	// completion produced none.
	NextTask *storage.Task `json:"next_task"`
	Message  string        `json:"message"`
	// Detail carries a side-effect failure (for example a lost successor
	// insert) that did not fail the completion itself.
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Validation happens before any task lookup.
	var req completeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	if !canAccess(principal, task) {
		// Indistinguishable from true absence.
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}

	outcome, err := s.completion.Complete(r.Context(), id, completion.Options{
		OccurrenceOnly: req.OccurrenceOnly,
		StopRecurrence: req.StopRecurrence,
	})
	if err != nil {
		s.logger.Error("completion failed", "task", id, "error", err)
		writeStorageErr(w, err)
		return
	}

	resp := completeResponse{
		Task:     outcome.Completed,
		NextTask: outcome.Next,
		Message:  outcome.Message,
	}
	if outcome.SideEffectErr != nil {
		resp.Detail = outcome.SideEffectErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// createTaskRequest is the task-creation glue body.
type createTaskRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Priority       string   `json:"priority"`
	Assignees      []string `json:"assignees"`
	Tags           []string `json:"tags"`
	WorkspaceID    string   `json:"workspace_id"`
	Due            *string  `json:"due"`
	IsRecurring    bool     `json:"is_recurring"`
	RecurrenceRule *string  `json:"recurrence_rule"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeFieldErr(w, "title", "is required")
		return
	}
	if req.Due != nil {
		if _, err := recurrence.ParseDate(*req.Due); err != nil {
			writeFieldErr(w, "due", "must be a YYYY-MM-DD date")
			return
		}
	}
	if req.IsRecurring && req.RecurrenceRule == nil {
		writeFieldErr(w, "recurrence_rule", "is required for a recurring task")
		return
	}

	created, err := s.store.InsertTask(r.Context(), &storage.Task{
		OwnerID:        principal.UserID,
		WorkspaceID:    req.WorkspaceID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Priority:       req.Priority,
		Assignees:      req.Assignees,
		Tags:           req.Tags,
		Due:            req.Due,
		IsRecurring:    req.IsRecurring,
		RecurrenceRule: req.RecurrenceRule,
	})
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	task, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	if !canAccess(principal, task) {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := storage.ListFilter{
		Status:      r.URL.Query().Get("status"),
		WorkspaceID: r.URL.Query().Get("workspace"),
	}
	// Without a workspace scope the listing covers only the caller's own
	// tasks.
	if filter.WorkspaceID == "" {
		filter.OwnerID = principal.UserID
	}

	tasks, err := s.store.ListTasks(r.Context(), filter)
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := r.PathValue("id")
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	if !canAccess(principal, task) {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		writeStorageErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
