package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkghttp "github.com/clinicboard/gatekeeper/pkg/http"
)

// LockoutServiceInterface defines the interface for lockout business logic
type LockoutServiceInterface interface {
	CheckLockout(ctx context.Context, identity string) (bool, *models.SecurityRecord, error)
	RecordFailedAttempt(ctx context.Context, identity string) (*models.SecurityRecord, error)
	RecordSuccessfulAttempt(ctx context.Context, identity string) error
	Reset(ctx context.Context, identity string) error
}

// CaptchaVerifierInterface defines the interface for solution verification
type CaptchaVerifierInterface interface {
	VerifySolution(ctx context.Context, sol models.CaptchaSolution) (bool, error)
}

// SessionIssuerInterface defines the interface for session issuance
type SessionIssuerInterface interface {
	CreateSession(ctx context.Context, identity string) (*models.Session, error)
}

// CredentialVerifier is the identity-provider boundary. The subsystem
// decides whether an attempt may proceed; the verifier decides whether
// the credentials themselves are right.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (bool, error)
	UpdatePassword(ctx context.Context, email, newPassword string) error
}

// AuthHandler handles login and lockout-related HTTP requests
type AuthHandler struct {
	lockoutService       LockoutServiceInterface
	captchaService       CaptchaVerifierInterface
	sessionService       SessionIssuerInterface
	verifier             CredentialVerifier
	captchaRequiredAfter int
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	lockoutService LockoutServiceInterface,
	captchaService CaptchaVerifierInterface,
	sessionService SessionIssuerInterface,
	verifier CredentialVerifier,
	captchaRequiredAfter int,
) *AuthHandler {
	return &AuthHandler{
		lockoutService:       lockoutService,
		captchaService:       captchaService,
		sessionService:       sessionService,
		verifier:             verifier,
		captchaRequiredAfter: captchaRequiredAfter,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required"`
	CaptchaID        string `json:"captcha_id,omitempty"`
	CaptchaPositions []int  `json:"captcha_positions,omitempty"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LockoutStatusResponse reports the lockout state of an identity.
// Attempt counters stay server-side; exposing them would tell a caller
// exactly how many guesses remain before an identity locks.
type LockoutStatusResponse struct {
	Identity         string `json:"identity"`
	Locked           bool   `json:"locked"`
	RemainingSeconds int64  `json:"remaining_seconds,omitempty"`
}

// Login handles a login attempt. Order matters: the lockout gate runs
// before credentials are ever inspected, and the captcha gate runs
// before the verifier once the identity has accumulated failures.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identity := models.NormalizeIdentity(req.Email)
	ctx := r.Context()

	locked, record, err := h.lockoutService.CheckLockout(ctx, identity)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if locked {
		writeLockedResponse(w, record)
		return
	}

	// After repeated failures a human check is required before the
	// credentials are even looked at
	if record != nil && record.FailedLoginAttempts >= h.captchaRequiredAfter {
		if req.CaptchaID == "" {
			pkghttp.WriteError(w, http.StatusForbidden, "captcha_required",
				"Complete the verification challenge to continue")
			return
		}
		ok, err := h.captchaService.VerifySolution(ctx, models.CaptchaSolution{
			PuzzleID:  req.CaptchaID,
			Positions: req.CaptchaPositions,
		})
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		if !ok {
			pkghttp.WriteError(w, http.StatusForbidden, "captcha_failed",
				"Verification challenge failed")
			return
		}
	}

	ok, err := h.verifier.VerifyCredentials(ctx, identity, req.Password)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if !ok {
		updated, err := h.lockoutService.RecordFailedAttempt(ctx, identity)
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		if updated != nil && updated.IsLocked(time.Now()) {
			writeLockedResponse(w, updated)
			return
		}
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	if err := h.lockoutService.RecordSuccessfulAttempt(ctx, identity); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	session, err := h.sessionService.CreateSession(ctx, identity)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
}

// LockoutStatus reports whether an identity is currently locked out
// @Router /auth/lockout [get]
func (h *AuthHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	identity := models.NormalizeIdentity(r.URL.Query().Get("identity"))
	if identity == "" {
		pkghttp.WriteBadRequest(w, "identity query parameter is required")
		return
	}

	locked, record, err := h.lockoutService.CheckLockout(r.Context(), identity)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := LockoutStatusResponse{Identity: identity, Locked: locked}
	if locked && record != nil {
		resp.RemainingSeconds = int64(record.RemainingLockout(time.Now()).Seconds())
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func writeLockedResponse(w http.ResponseWriter, record *models.SecurityRecord) {
	if record == nil {
		pkghttp.WriteLocked(w, "Account temporarily locked. Please try again later.")
		return
	}
	remaining := record.RemainingLockout(time.Now()).Round(time.Second)
	pkghttp.WriteLocked(w, fmt.Sprintf("Account temporarily locked. Try again in %s.", remaining))
}
