package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lectern-app/taskd/storage"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set(headerContentType, mimeTypeJSON)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeFieldErr reports a validation failure with per-field detail.
func writeFieldErr(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": map[string]string{field: msg},
	})
}

// writeStorageErr maps storage sentinel errors onto HTTP statuses.
// Ownership failures are mapped to not-found elsewhere, before this is
// reached, so absence and denial stay indistinguishable.
func writeStorageErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, "task not found")
	case errors.Is(err, storage.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, storage.ErrConflict):
		writeErr(w, http.StatusConflict, "task conflict")
	case errors.Is(err, storage.ErrStorageUnavailable):
		writeErr(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeErr(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body into out. An empty body is
// valid and leaves out untouched. A type mismatch is reported with the
// offending field so callers get validation detail before any lookup.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	err := json.NewDecoder(r.Body).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeFieldErr(w, typeErr.Field, "must be of type "+typeErr.Type.String())
		return false
	}
	writeErr(w, http.StatusBadRequest, "malformed request body")
	return false
}
