package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkghttp "github.com/clinicboard/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminSessionServiceInterface defines the session operations exposed to operators
type AdminSessionServiceInterface interface {
	ListSessions(ctx context.Context) ([]*models.Session, error)
	RevokeSession(ctx context.Context, sessionID, reason string) error
}

// AdminHandler handles operator HTTP requests
type AdminHandler struct {
	sessionService AdminSessionServiceInterface
	lockoutService LockoutServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sessionService AdminSessionServiceInterface, lockoutService LockoutServiceInterface) *AdminHandler {
	return &AdminHandler{
		sessionService: sessionService,
		lockoutService: lockoutService,
	}
}

// ResetLockoutRequest represents the request body for clearing a lockout
type ResetLockoutRequest struct {
	Identity string `json:"identity" validate:"required,email"`
}

// ListSessions returns every session the store currently tracks
// @Router /admin/sessions [get]
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListSessions(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// RevokeSession force-revokes a session by id
// @Router /admin/sessions/{id} [delete]
func (h *AdminHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Session id is required")
		return
	}

	if err := h.sessionService.RevokeSession(r.Context(), sessionID, models.RevokeReasonAdmin); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session revoked."})
}

// ResetLockout clears the lockout state for an identity
// @Router /admin/lockouts/reset [post]
func (h *AdminHandler) ResetLockout(w http.ResponseWriter, r *http.Request) {
	var req ResetLockoutRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.lockoutService.Reset(r.Context(), req.Identity); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No lockout record for identity")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Lockout cleared."})
}
