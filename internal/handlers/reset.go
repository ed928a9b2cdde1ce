package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkghttp "github.com/clinicboard/gatekeeper/pkg/http"
)

// ResetTokenServiceInterface defines the interface for reset token business logic
type ResetTokenServiceInterface interface {
	IssueToken(ctx context.Context, email string) (string, error)
	Consume(ctx context.Context, plainToken string) (*models.PasswordResetToken, error)
}

// ResetHandler handles password reset HTTP requests
type ResetHandler struct {
	service  ResetTokenServiceInterface
	verifier CredentialVerifier
}

// NewResetHandler creates a new ResetHandler
func NewResetHandler(service ResetTokenServiceInterface, verifier CredentialVerifier) *ResetHandler {
	return &ResetHandler{service: service, verifier: verifier}
}

// ResetRequestRequest represents the request body for starting a reset
type ResetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetConfirmRequest represents the request body for completing a reset
type ResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Request starts a password reset. The response is identical whether or
// not the email is known, so the endpoint cannot be used for enumeration.
// @Router /auth/password-reset/request [post]
func (h *ResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if _, err := h.service.IssueToken(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the email is registered, a reset link has been sent.",
	})
}

// Confirm completes a password reset with a previously issued token
// @Router /auth/password-reset/confirm [post]
func (h *ResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	token, err := h.service.Consume(r.Context(), req.Token)
	if err != nil {
		// Unknown, expired and replayed tokens all read the same to the caller
		pkghttp.WriteServiceError(w, err)
		return
	}

	if err := h.verifier.UpdatePassword(r.Context(), token.Email, req.NewPassword); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password updated.",
	})
}
