package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkglogger "github.com/clinicboard/gatekeeper/pkg/logger"
	"github.com/google/uuid"
)

// ResetTokenRepository defines the interface for reset token storage
type ResetTokenRepository interface {
	Create(ctx context.Context, tok *models.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenService issues, validates and retires single-use short-lived
// password reset tokens
type ResetTokenService struct {
	repo   ResetTokenRepository
	email  EmailService
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	expiry time.Duration
	now    func() time.Time
}

// NewResetTokenService creates a new ResetTokenService
func NewResetTokenService(repo ResetTokenRepository, email EmailService, logger *slog.Logger, audit *pkglogger.AuditLogger, expiry time.Duration) *ResetTokenService {
	return &ResetTokenService{
		repo:   repo,
		email:  email,
		logger: logger,
		audit:  audit,
		expiry: expiry,
		now:    time.Now,
	}
}

// IssueToken creates a reset token for the email, persists its hash and
// mails the link. A failed send does not invalidate the token: the record
// stays consumable, only delivery is degraded.
// Multiple outstanding tokens per email are permitted.
func (s *ResetTokenService) IssueToken(ctx context.Context, email string) (string, error) {
	email = models.NormalizeIdentity(email)

	plainToken, err := s.generateToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	tok := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		TokenHash: hashToken(plainToken),
		Email:     email,
		ExpiresAt: now.Add(s.expiry),
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, tok); err != nil {
		s.logger.Error("failed to persist reset token",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	if s.email != nil {
		if err := s.email.SendPasswordResetEmail(ctx, email, plainToken, tok.ExpiresAt); err != nil {
			s.logger.Warn("reset email delivery failed, token remains valid",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
	}

	s.audit.LogTokenEvent(pkglogger.AuditEvent{
		EventType: "reset_token_issued",
		Identity:  email,
		Success:   true,
	})

	return plainToken, nil
}

// ValidateToken returns the token record when it is still consumable.
// Used or expired records are deleted on sight and reported as their
// distinct error kinds.
func (s *ResetTokenService) ValidateToken(ctx context.Context, plainToken string) (*models.PasswordResetToken, error) {
	if plainToken == "" {
		return nil, models.ErrValidation
	}

	tok, err := s.repo.GetByTokenHash(ctx, hashToken(plainToken))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if tok.IsUsed() {
		if err := s.repo.Delete(ctx, tok.ID); err != nil {
			s.logger.Warn("failed to delete used reset token", slog.Any("error", err))
		}
		return nil, models.ErrAlreadyUsed
	}
	if tok.IsExpired(now) {
		if err := s.repo.Delete(ctx, tok.ID); err != nil {
			s.logger.Warn("failed to delete expired reset token", slog.Any("error", err))
		}
		return nil, models.ErrExpired
	}

	return tok, nil
}

// Consume validates and retires a token in one step
func (s *ResetTokenService) Consume(ctx context.Context, plainToken string) (*models.PasswordResetToken, error) {
	tok, err := s.ValidateToken(ctx, plainToken)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyUsed) {
			s.audit.LogTokenEvent(pkglogger.AuditEvent{
				EventType:     "reset_token_replayed",
				Success:       false,
				FailureReason: "already_used",
			})
		}
		return nil, err
	}

	if err := s.repo.MarkUsed(ctx, tok.ID, s.now()); err != nil {
		return nil, err
	}

	s.audit.LogTokenEvent(pkglogger.AuditEvent{
		EventType: "reset_token_consumed",
		Identity:  tok.Email,
		Success:   true,
	})

	return tok, nil
}

// CleanupExpired sweeps used and expired tokens, returning the count removed
func (s *ResetTokenService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.CleanupExpired(ctx, s.now())
}

// generateToken builds an opaque token: a time-based prefix plus a random
// suffix, collision probability negligible at the intended volume
func (s *ResetTokenService) generateToken() (string, error) {
	suffix := make([]byte, 24)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	prefix := strconv.FormatInt(s.now().UnixMilli(), 36)
	return prefix + "." + base64.RawURLEncoding.EncodeToString(suffix), nil
}

// hashToken derives the at-rest form; lookups re-hash the plain token
func hashToken(plainToken string) string {
	sum := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(sum[:])
}
