package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	valid bool
}

func (v *stubValidator) ValidateSession(ctx context.Context, sessionID string) bool {
	return v.valid
}

func TestRequireSession_PassesValidSession(t *testing.T) {
	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := RequireSession(&stubValidator{valid: true})(next)

	req := httptest.NewRequest("GET", "/admin/sessions", nil)
	req.Header.Set("X-Session-ID", "sess-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", seenID)
}

func TestRequireSession_RejectsMissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	handler := RequireSession(&stubValidator{valid: true})(next)

	req := httptest.NewRequest("GET", "/admin/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_RejectsInvalidSession(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	handler := RequireSession(&stubValidator{valid: false})(next)

	req := httptest.NewRequest("GET", "/admin/sessions", nil)
	req.Header.Set("X-Session-ID", "sess-revoked")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
