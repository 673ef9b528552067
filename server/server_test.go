package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmem "github.com/lectern-app/taskd/server/auth/memory"
	"github.com/lectern-app/taskd/storage"
	"github.com/lectern-app/taskd/storage/memory"
)

const (
	aliceToken = "token-alice"
	bobToken   = "token-bob"
)

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	tokens := authmem.New()
	tokens.AddToken(aliceToken, "alice")
	tokens.AddToken(bobToken, "bob")

	srv, err := New(store, tokens)
	require.NoError(t, err)
	return srv, store
}

func doRequest(srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func seedTask(t *testing.T, store *memory.Store, task *storage.Task) *storage.Task {
	t.Helper()
	created, err := store.InsertTask(context.Background(), task)
	require.NoError(t, err)
	return created
}

func TestAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name     string
		token    string
		expected int
	}{
		{name: "missing token", token: "", expected: http.StatusUnauthorized},
		{name: "unknown token", token: "nope", expected: http.StatusUnauthorized},
		{name: "valid token", token: aliceToken, expected: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, "/api/tasks", tt.token, "")
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompletePlainTask(t *testing.T) {
	srv, store := newTestServer(t)
	task := seedTask(t, store, &storage.Task{
		OwnerID: "alice",
		Title:   "Plain",
		Due:     strPtr("2024-03-15"),
	})

	rec := doRequest(srv, http.MethodPost, "/api/tasks/"+task.ID+"/complete", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Task     *storage.Task `json:"task"`
		NextTask *storage.Task `json:"next_task"`
		Message  string        `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, storage.StatusDone, resp.Task.Status)
	assert.Nil(t, resp.NextTask)
	assert.Equal(t, "task completed", resp.Message)
}

func TestCompleteRecurringRoot(t *testing.T) {
	srv, store := newTestServer(t)
	root := seedTask(t, store, &storage.Task{
		OwnerID:        "alice",
		Title:          "Monthly report",
		Due:            strPtr("2024-01-31"),
		IsRecurring:    true,
		RecurrenceRule: strPtr("RRULE:FREQ=MONTHLY"),
	})

	rec := doRequest(srv, http.MethodPost, "/api/tasks/"+root.ID+"/complete", aliceToken, "{}")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Task     *storage.Task `json:"task"`
		NextTask *storage.Task `json:"next_task"`
		Message  string        `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, storage.StatusDone, resp.Task.Status)
	require.NotNil(t, resp.NextTask)
	require.NotNil(t, resp.NextTask.Due)
	assert.Equal(t, "2024-02-29", *resp.NextTask.Due, "2024 is a leap year")
	assert.Equal(t, "series completed and next occurrence created", resp.Message)
}

func TestCompleteStopRecurrence(t *testing.T) {
	srv, store := newTestServer(t)
	root := seedTask(t, store, &storage.Task{
		OwnerID:        "alice",
		Title:          "Stopping",
		Due:            strPtr("2024-03-01"),
		IsRecurring:    true,
		RecurrenceRule: strPtr("RRULE:FREQ=DAILY"),
	})

	rec := doRequest(srv, http.MethodPost, "/api/tasks/"+root.ID+"/complete", aliceToken,
		`{"stop_recurrence": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Task     *storage.Task `json:"task"`
		NextTask *storage.Task `json:"next_task"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Task.IsRecurring)
	assert.Nil(t, resp.Task.RecurrenceRule)
	assert.Nil(t, resp.NextTask)
}

func TestCompleteInstanceOccurrenceOnly(t *testing.T) {
	srv, store := newTestServer(t)
	root := seedTask(t, store, &storage.Task{
		OwnerID:        "alice",
		Title:          "Series",
		Due:            strPtr("2024-03-10"),
		IsRecurring:    true,
		RecurrenceRule: strPtr("RRULE:FREQ=DAILY"),
	})
	instance := seedTask(t, store, &storage.Task{
		OwnerID:            "alice",
		Title:              "Series",
		Due:                strPtr("2024-03-11"),
		RecurrenceParentID: &root.ID,
		RecurrenceDate:     strPtr("2024-03-11"),
	})

	rec := doRequest(srv, http.MethodPost, "/api/tasks/"+instance.ID+"/complete", aliceToken,
		`{"occurrence_only": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updatedRoot, err := store.GetTask(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Contains(t, updatedRoot.RecurrenceExceptions, "2024-03-11")
}

func TestCompleteValidation(t *testing.T) {
	srv, store := newTestServer(t)
	task := seedTask(t, store, &storage.Task{OwnerID: "alice", Title: "Typed"})

	rec := doRequest(srv, http.MethodPost, "/api/tasks/"+task.ID+"/complete", aliceToken,
		`{"stop_recurrence": "yes"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Error)
	assert.Contains(t, resp.Fields, "stop_recurrence")

	// Validation fires before lookup: same failure for a missing id.
	rec = doRequest(srv, http.MethodPost, "/api/tasks/missing/complete", aliceToken,
		`{"occurrence_only": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteOwnership(t *testing.T) {
	srv, store := newTestServer(t)

	personal := seedTask(t, store, &storage.Task{OwnerID: "alice", Title: "Private"})
	shared := seedTask(t, store, &storage.Task{
		OwnerID: "alice", WorkspaceID: "lab", Title: "Shared",
	})

	// Someone else's personal task reads as absent.
	rec := doRequest(srv, http.MethodPost, "/api/tasks/"+personal.ID+"/complete", bobToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing tasks produce the identical response.
	recMissing := doRequest(srv, http.MethodPost, "/api/tasks/missing/complete", bobToken, "")
	assert.Equal(t, http.StatusNotFound, recMissing.Code)
	assert.JSONEq(t, rec.Body.String(), recMissing.Body.String())

	// Workspace tasks are completable by workspace members.
	rec = doRequest(srv, http.MethodPost, "/api/tasks/"+shared.ID+"/complete", bobToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTask(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/tasks", aliceToken,
		`{"title": "New grant application", "due": "2024-05-01",
		  "is_recurring": true, "recurrence_rule": "RRULE:FREQ=YEARLY"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created storage.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.OwnerID)
	assert.Equal(t, storage.StatusTodo, created.Status)
	assert.True(t, created.IsRecurring)
}

func TestCreateTaskValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing title", body: `{}`, field: "title"},
		{name: "bad due date", body: `{"title": "x", "due": "May 1st"}`, field: "due"},
		{
			name:  "recurring without rule",
			body:  `{"title": "x", "is_recurring": true}`,
			field: "recurrence_rule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/tasks", aliceToken, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Fields, tt.field)
		})
	}
}

func TestListTasksScopedToOwner(t *testing.T) {
	srv, store := newTestServer(t)
	seedTask(t, store, &storage.Task{OwnerID: "alice", Title: "mine"})
	seedTask(t, store, &storage.Task{OwnerID: "bob", Title: "theirs"})

	rec := doRequest(srv, http.MethodGet, "/api/tasks", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tasks []storage.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "mine", resp.Tasks[0].Title)
}

func TestDeleteTask(t *testing.T) {
	srv, store := newTestServer(t)
	task := seedTask(t, store, &storage.Task{OwnerID: "alice", Title: "gone"})

	rec := doRequest(srv, http.MethodDelete, "/api/tasks/"+task.ID, aliceToken, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/tasks/"+task.ID, aliceToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarFeed(t *testing.T) {
	srv, store := newTestServer(t)
	seedTask(t, store, &storage.Task{
		OwnerID:              "alice",
		Title:                "Weekly seminar",
		Due:                  strPtr("2024-03-11"),
		IsRecurring:          true,
		RecurrenceRule:       strPtr("RRULE:FREQ=WEEKLY;BYDAY=MO"),
		RecurrenceExceptions: []string{"2024-03-18"},
	})
	seedTask(t, store, &storage.Task{
		OwnerID: "alice", Title: "Done already",
		Due: strPtr("2024-03-01"), Status: storage.StatusDone,
	})
	seedTask(t, store, &storage.Task{OwnerID: "alice", Title: "Undated"})

	rec := doRequest(srv, http.MethodGet, "/api/calendar.ics", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeTypeCalendar, rec.Header().Get(headerContentType))

	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "BEGIN:VTODO")
	assert.Contains(t, body, "SUMMARY:Weekly seminar")
	assert.Contains(t, body, "FREQ=WEEKLY")
	assert.Contains(t, body, "EXDATE;VALUE=DATE:20240318")
	assert.NotContains(t, body, "Done already", "done tasks stay out of the feed")
	assert.NotContains(t, body, "Undated", "undated tasks stay out of the feed")
}
