package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkghttp "github.com/clinicboard/gatekeeper/pkg/http"
)

// CaptchaServiceInterface defines the interface for puzzle issuance and verification
type CaptchaServiceInterface interface {
	IssuePuzzle(ctx context.Context, difficulty models.CaptchaDifficulty) (*models.CaptchaPuzzle, error)
	VerifySolution(ctx context.Context, sol models.CaptchaSolution) (bool, error)
}

// CaptchaHandler handles verification challenge HTTP requests
type CaptchaHandler struct {
	service CaptchaServiceInterface
}

// NewCaptchaHandler creates a new CaptchaHandler
func NewCaptchaHandler(service CaptchaServiceInterface) *CaptchaHandler {
	return &CaptchaHandler{service: service}
}

// IssueRequest represents the request body for a new challenge
type IssueRequest struct {
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// PuzzleResponse is the client-facing view of a challenge. The expected
// solution never leaves the server.
type PuzzleResponse struct {
	ID        string    `json:"id"`
	GridSize  int       `json:"grid_size"`
	Positions []int     `json:"positions"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyRequest represents the request body for challenge verification
type VerifyRequest struct {
	ID        string `json:"id" validate:"required"`
	Positions []int  `json:"positions" validate:"required"`
}

// VerifyResponse reports whether the submitted arrangement solved the challenge
type VerifyResponse struct {
	Solved bool `json:"solved"`
}

// Issue creates a new slide puzzle challenge
// @Router /auth/captcha [post]
func (h *CaptchaHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest

	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return
		}
		if err := ValidateRequest(req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	}

	difficulty := models.CaptchaDifficulty(req.Difficulty)
	if req.Difficulty == "" {
		difficulty = models.CaptchaEasy
	}

	puzzle, err := h.service.IssuePuzzle(r.Context(), difficulty)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			pkghttp.WriteBadRequest(w, "Unknown difficulty")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, PuzzleResponse{
		ID:        puzzle.ID,
		GridSize:  puzzle.GridSize,
		Positions: puzzle.IssuedPositions,
		ExpiresAt: puzzle.ExpiresAt,
	})
}

// Verify checks a submitted arrangement against the stored challenge
// @Router /auth/captcha/verify [post]
func (h *CaptchaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	solved, err := h.service.VerifySolution(r.Context(), models.CaptchaSolution{
		PuzzleID:  req.ID,
		Positions: req.Positions,
	})
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyResponse{Solved: solved})
}
