package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkghttp "github.com/clinicboard/gatekeeper/pkg/http"
)

// SessionHeader carries the opaque session identifier on authenticated requests
const SessionHeader = "X-Session-ID"

// SessionServiceInterface defines the interface for session business logic
type SessionServiceInterface interface {
	ValidateSession(ctx context.Context, sessionID string) bool
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	RevokeSession(ctx context.Context, sessionID, reason string) error
	PollInterval() time.Duration
}

// SessionHandler handles session lifecycle HTTP requests
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// SessionResponse is the client-facing view of a validated session
type SessionResponse struct {
	SessionID           string    `json:"session_id"`
	Identity            string    `json:"identity"`
	ExpiresAt           time.Time `json:"expires_at"`
	PollIntervalSeconds int64     `json:"poll_interval_seconds"`
}

// Validate checks the caller's session and extends its idle window
// @Router /auth/session [get]
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		pkghttp.WriteUnauthorized(w, "Session required")
		return
	}

	if !h.service.ValidateSession(r.Context(), sessionID) {
		pkghttp.WriteUnauthorized(w, "Session invalid")
		return
	}

	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Session invalid")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		SessionID:           session.ID,
		Identity:            session.Identity,
		ExpiresAt:           session.ExpiresAt,
		PollIntervalSeconds: int64(h.service.PollInterval().Seconds()),
	})
}

// Logout revokes the caller's session. Revoking a session that is
// already gone still reads as success.
// @Router /auth/logout [post]
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		pkghttp.WriteUnauthorized(w, "Session required")
		return
	}

	if err := h.service.RevokeSession(r.Context(), sessionID, models.RevokeReasonLogout); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}
