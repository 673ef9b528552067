package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	// PrincipalContextKey is the context key for the authenticated principal
	PrincipalContextKey contextKey = "principal"
)

// GetPrincipalFromContext retrieves the authenticated principal from the context
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

// Middleware creates HTTP middleware that enforces bearer-token
// authentication on every path except /health.
func Middleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			token, err := parseBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				requestAuth(w)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if authErr, ok := err.(*Error); ok && authErr.Type == ErrForbidden {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				requestAuth(w)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestAuth sends the WWW-Authenticate challenge
func requestAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskd"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// parseBearerToken extracts the token from an Authorization header
func parseBearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", &Error{
			Type:    ErrInvalidToken,
			Message: "invalid authorization header format",
		}
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", &Error{
			Type:    ErrInvalidToken,
			Message: "empty bearer token",
		}
	}
	return token, nil
}
