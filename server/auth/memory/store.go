// Package memory provides an in-memory token store implementing
// auth.Authenticator, suitable for tests and single-node deployments
// where API tokens come from the config file.
package memory

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"sync"

	"github.com/lectern-app/taskd/server/auth"
)

// Store implements an in-memory token-to-user mapping.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]auth.Principal
	logger *slog.Logger
}

var _ auth.Authenticator = (*Store)(nil)

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

// New creates a new in-memory token store.
func New(opts ...Option) *Store {
	s := &Store{
		tokens: make(map[string]auth.Principal),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddToken registers a token for the given user.
func (s *Store) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = auth.Principal{UserID: userID}
	s.logger.Debug("token registered", "user", userID)
}

// Authenticate resolves a bearer token to its principal. Comparison is
// constant-time per stored token.
func (s *Store) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for stored, principal := range s.tokens {
		if len(stored) == len(token) &&
			subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1 {
			p := principal
			return &p, nil
		}
	}
	return nil, &auth.Error{
		Type:    auth.ErrInvalidToken,
		Message: "unknown token",
	}
}
