package middleware

import (
	"context"
	"net/http"

	pkghttp "github.com/clinicboard/gatekeeper/pkg/http"
)

// SessionValidator reports whether an opaque session id is still honored
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) bool
}

type contextKey string

// SessionIDContextKey holds the validated session id for downstream handlers
const SessionIDContextKey contextKey = "session_id"

// RequireSession returns a middleware that rejects requests without a
// live session. Validation slides the idle window as a side effect.
func RequireSession(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-ID")
			if sessionID == "" {
				pkghttp.WriteUnauthorized(w, "Session required")
				return
			}

			if !validator.ValidateSession(r.Context(), sessionID) {
				pkghttp.WriteUnauthorized(w, "Session invalid")
				return
			}

			ctx := context.WithValue(r.Context(), SessionIDContextKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext extracts the validated session id, if any
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionIDContextKey).(string)
	return id, ok
}
