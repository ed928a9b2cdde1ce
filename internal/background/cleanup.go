package background

import (
	"context"
	"log/slog"
	"time"
)

// TokenSweeper removes consumed and expired password reset tokens
type TokenSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SessionSweeper removes revoked and idle-expired sessions
type SessionSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// LockoutSweeper removes stale lockout bookkeeping rows
type LockoutSweeper interface {
	CleanupStale(ctx context.Context) (int64, error)
}

// CleanupManager periodically sweeps expired security state from the database
type CleanupManager struct {
	tokens   TokenSweeper
	sessions SessionSweeper
	lockouts LockoutSweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	tokens TokenSweeper,
	sessions SessionSweeper,
	lockouts LockoutSweeper,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		tokens:   tokens,
		sessions: sessions,
		lockouts: lockouts,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup sweeps each store in turn; one failing sweep does not
// block the others
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cm.sweep(cleanupCtx, "reset_tokens", cm.tokens.CleanupExpired)
	cm.sweep(cleanupCtx, "sessions", cm.sessions.CleanupExpired)
	cm.sweep(cleanupCtx, "security_records", cm.lockouts.CleanupStale)
}

func (cm *CleanupManager) sweep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	rowsDeleted, err := fn(ctx)
	if err != nil {
		cm.logger.Error("cleanup sweep failed",
			slog.String("target", name),
			slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("cleanup sweep completed",
			slog.String("target", name),
			slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
