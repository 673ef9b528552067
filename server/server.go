// Package server exposes the task service over HTTP: task CRUD glue, the
// recurring-task completion endpoint, and a read-only iCalendar feed.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lectern-app/taskd/completion"
	"github.com/lectern-app/taskd/server/auth"
	"github.com/lectern-app/taskd/storage"
)

const (
	headerContentType = "Content-Type"

	mimeTypeJSON     = "application/json; charset=utf-8"
	mimeTypeCalendar = "text/calendar; charset=utf-8"
)

// Server routes task API requests.
type Server struct {
	store      storage.Storage
	completion *completion.Service
	handler    http.Handler
	logger     *slog.Logger
}

// Option represents a configuration option for the Server.
type Option func(*Server)

// WithLogger sets the logger for the server and its completion service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a task API server. Every route except /health sits behind
// bearer-token authentication.
func New(store storage.Storage, authenticator auth.Authenticator, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	s := &Server{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.completion = completion.New(store, completion.WithLogger(s.logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.handleCompleteTask)
	mux.HandleFunc("GET /api/calendar.ics", s.handleCalendarFeed)

	s.handler = auth.Middleware(authenticator)(s.logRequests(mux))
	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info("received request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// canAccess enforces the endpoint-local ownership rule: a task without a
// workspace association is personal and only its owner may touch it.
// Workspace membership itself is the caller's concern, resolved upstream.
func canAccess(principal *auth.Principal, task *storage.Task) bool {
	if task.WorkspaceID == "" {
		return task.OwnerID == principal.UserID
	}
	return true
}
