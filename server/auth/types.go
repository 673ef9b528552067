package auth

import (
	"context"
	"fmt"
)

// Principal represents an authenticated user.
type Principal struct {
	// UserID is the stable identity tasks are owned by.
	UserID string
	// DisplayName is a human-friendly label, informational only.
	DisplayName string
}

// ErrorType represents the type of authentication error.
type ErrorType string

const (
	ErrInvalidToken ErrorType = "invalid_token"
	ErrUnauthorized ErrorType = "unauthorized"
	ErrForbidden    ErrorType = "forbidden"
)

// Error represents an authentication-related error.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Authenticator defines the interface for token verification providers.
// Handlers never see credentials; they consume the already-verified
// identity from the request context.
type Authenticator interface {
	// Authenticate resolves a bearer token to a Principal.
	Authenticate(ctx context.Context, token string) (*Principal, error)
}
