package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/clinicboard/gatekeeper/internal/notify"
	pkglogger "github.com/clinicboard/gatekeeper/pkg/logger"
)

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	GetActiveByIdentity(ctx context.Context, identity string) (*models.Session, error)
	UpdateActivity(ctx context.Context, id string, lastActivity, expiresAt time.Time) error
	Revoke(ctx context.Context, id string, at time.Time, reason string) error
	List(ctx context.Context) ([]*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionConfig holds configuration for the session lifecycle manager
type SessionConfig struct {
	IdleTimeout     time.Duration
	PollInterval    time.Duration
	ValidateTimeout time.Duration
}

// SessionService is the authoritative server-side session state machine:
// NoSession -> Active -> {Expired, Revoked, LoggedOut}
type SessionService struct {
	repo   SessionRepository
	broker notify.Broker
	config SessionConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	now    func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, broker notify.Broker, config SessionConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		repo:   repo,
		broker: broker,
		config: config,
		logger: logger,
		audit:  audit,
		now:    time.Now,
	}
}

// CreateSession issues a new session after successful authentication.
// Any prior live session for the identity is revoked and its holders are
// notified, enforcing the single-session-per-user model.
func (s *SessionService) CreateSession(ctx context.Context, identity string) (*models.Session, error) {
	identity = models.NormalizeIdentity(identity)

	if prior, err := s.repo.GetActiveByIdentity(ctx, identity); err == nil {
		if err := s.revoke(ctx, prior.ID, models.RevokeReasonSuperseded); err != nil {
			return nil, fmt.Errorf("failed to supersede prior session: %w", err)
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now()
	session := &models.Session{
		ID:             id,
		Identity:       identity,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.config.IdleTimeout),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.audit.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "session_created",
		Identity:  identity,
		SessionID: session.ID,
		Success:   true,
	})

	return session, nil
}

// ValidateSession checks whether a session id is still honored and, when
// it is, slides the idle window forward. Any store error or ambiguity
// answers false: a validation failure always downgrades to
// unauthenticated, never the other way.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ValidateTimeout)
	defer cancel()

	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("session validation failed closed", slog.Any("error", err))
		}
		return false
	}

	now := s.now()
	if !session.IsActive(now) {
		return false
	}

	if err := s.repo.UpdateActivity(ctx, sessionID, now, now.Add(s.config.IdleTimeout)); err != nil {
		s.logger.Warn("failed to extend session activity", slog.Any("error", err))
		return false
	}

	return true
}

// GetSession returns the stored session row, for administrative views
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.repo.Get(ctx, sessionID)
}

// ListSessions returns all session rows for administrative review
func (s *SessionService) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return s.repo.List(ctx)
}

// RevokeSession terminates a session and broadcasts the revocation so
// live holders can tear down without waiting for the next poll
func (s *SessionService) RevokeSession(ctx context.Context, sessionID, reason string) error {
	if err := s.revoke(ctx, sessionID, reason); err != nil {
		return err
	}

	s.audit.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "session_revoked",
		SessionID: sessionID,
		Success:   true,
		Metadata:  map[string]string{"reason": reason},
	})
	return nil
}

func (s *SessionService) revoke(ctx context.Context, sessionID, reason string) error {
	now := s.now()
	if err := s.repo.Revoke(ctx, sessionID, now, reason); err != nil {
		return err
	}

	event := notify.RevocationEvent{SessionID: sessionID, Reason: reason, RevokedAt: now}
	if err := s.broker.Publish(ctx, event); err != nil {
		// The poll loop is the fail-safe; a lost broadcast only delays teardown
		s.logger.Warn("failed to broadcast session revocation",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
	return nil
}

// PollInterval exposes the configured validation cadence to monitors
func (s *SessionService) PollInterval() time.Duration {
	return s.config.PollInterval
}

// CleanupExpired removes revoked and timed-out session rows
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// generateSessionID returns an opaque unguessable id
func generateSessionID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
