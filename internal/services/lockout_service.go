package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	pkglogger "github.com/clinicboard/gatekeeper/pkg/logger"
)

// SecurityRecordRepository defines the interface for lockout record storage
type SecurityRecordRepository interface {
	Get(ctx context.Context, identity string) (*models.SecurityRecord, error)
	Upsert(ctx context.Context, rec *models.SecurityRecord) error
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context) ([]*models.SecurityRecord, error)
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Fail modes for lockout checks when the record store is unreachable
const (
	FailOpen   = "open"   // permit the attempt, log a warning
	FailClosed = "closed" // treat the identity as locked
)

// LockoutConfig holds configuration for the progressive lockout engine
type LockoutConfig struct {
	MaxFailedAttempts int
	// LockoutDurations maps the lockout ordinal to a duration; ordinals
	// past the end reuse the last (longest) entry.
	LockoutDurations []time.Duration
	FailMode         string
	RecordRetention  time.Duration
}

// LockoutService decides lock/unlock per identity with escalating
// lockout durations
type LockoutService struct {
	repo   SecurityRecordRepository
	config LockoutConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	now    func() time.Time

	// Read-modify-write on a record is not atomic at the store, so
	// updates for the same identity are serialized here.
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo SecurityRecordRepository, config LockoutConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		config: config,
		logger: logger,
		audit:  audit,
		now:    time.Now,
		locks:  make(map[string]*identityLock),
	}
}

// lockIdentity serializes updates for one identity without a global lock.
// The returned release function must be called when the update is done.
func (s *LockoutService) lockIdentity(identity string) func() {
	s.mu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &identityLock{}
		s.locks[identity] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, identity)
		}
		s.mu.Unlock()
	}
}

// CheckLockout reports whether an identity is currently locked out.
// A store failure is resolved by the configured fail mode: fail-open
// permits the attempt with a logged warning (the reference behavior),
// fail-closed reports locked.
func (s *LockoutService) CheckLockout(ctx context.Context, identity string) (bool, *models.SecurityRecord, error) {
	identity = models.NormalizeIdentity(identity)

	rec, err := s.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil, nil
		}
		if s.config.FailMode == FailClosed {
			s.logger.Warn("lockout check failed, failing closed",
				slog.String("identity", pkglogger.SanitizedEmail(identity)),
				slog.Any("error", err))
			return true, nil, nil
		}
		s.logger.Warn("lockout check failed, failing open",
			slog.String("identity", pkglogger.SanitizedEmail(identity)),
			slog.Any("error", err))
		return false, nil, nil
	}

	return rec.IsLocked(s.now()), rec, nil
}

// RecordFailedAttempt increments the failure counter and, on reaching the
// threshold, transitions the identity into an escalated lockout
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, identity string) (*models.SecurityRecord, error) {
	identity = models.NormalizeIdentity(identity)

	release := s.lockIdentity(identity)
	defer release()

	now := s.now()

	rec, err := s.repo.Get(ctx, identity)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		// Created lazily on first failed attempt
		rec = &models.SecurityRecord{Identity: identity, Email: identity}
	}

	rec.FailedLoginAttempts++
	rec.LastAttemptAt = now

	if rec.FailedLoginAttempts >= s.config.MaxFailedAttempts {
		rec.ConsecutiveLockouts++
		duration := s.lockoutDuration(rec.ConsecutiveLockouts)
		until := now.Add(duration)
		rec.LockoutUntil = &until
		// Counter restarts so the identity gets a fresh window once the
		// lockout expires; escalation memory lives in ConsecutiveLockouts.
		rec.FailedLoginAttempts = 0

		s.logger.Warn("identity locked out",
			slog.String("identity", pkglogger.SanitizedEmail(identity)),
			slog.Int("consecutive_lockouts", rec.ConsecutiveLockouts),
			slog.Duration("duration", duration))
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "lockout_triggered",
			Identity:      identity,
			Success:       false,
			FailureReason: "max_attempts_reached",
			Metadata:      map[string]string{"lockout_duration": duration.String()},
		})
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist security record: %w", err)
	}

	return rec, nil
}

// RecordSuccessfulAttempt clears the failure counter and any active
// lockout. ConsecutiveLockouts is deliberately preserved so a previously
// abused account keeps its steeper lockout schedule.
func (s *LockoutService) RecordSuccessfulAttempt(ctx context.Context, identity string) error {
	identity = models.NormalizeIdentity(identity)

	release := s.lockIdentity(identity)
	defer release()

	rec, err := s.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	rec.FailedLoginAttempts = 0
	rec.LockoutUntil = nil
	rec.LastAttemptAt = s.now()

	return s.repo.Upsert(ctx, rec)
}

// Reset is the administrative override: zeroes all counters including the
// escalation memory
func (s *LockoutService) Reset(ctx context.Context, identity string) error {
	identity = models.NormalizeIdentity(identity)

	release := s.lockIdentity(identity)
	defer release()

	rec, err := s.repo.Get(ctx, identity)
	if err != nil {
		return err
	}

	rec.FailedLoginAttempts = 0
	rec.LockoutUntil = nil
	rec.ConsecutiveLockouts = 0

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "lockout_reset",
		Identity:  identity,
		Success:   true,
	})
	return nil
}

// ListRecords returns every security record for administrative review
func (s *LockoutService) ListRecords(ctx context.Context) ([]*models.SecurityRecord, error) {
	return s.repo.List(ctx)
}

// CleanupStale removes quiescent records past the retention window
func (s *LockoutService) CleanupStale(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.RecordRetention)
	return s.repo.DeleteStale(ctx, cutoff)
}

// lockoutDuration maps a lockout ordinal onto the escalation ladder.
// Ordinals beyond the ladder reuse the last entry; the cap is deliberate.
func (s *LockoutService) lockoutDuration(ordinal int) time.Duration {
	idx := ordinal - 1
	if idx >= len(s.config.LockoutDurations) {
		idx = len(s.config.LockoutDurations) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return s.config.LockoutDurations[idx]
}
