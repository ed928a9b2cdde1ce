package repositories

import (
	"context"
	"time"

	"github.com/clinicboard/gatekeeper/internal/database"
	"github.com/clinicboard/gatekeeper/internal/models"
)

// SessionRepository handles database operations for server-side sessions
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session row
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, identity, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query, s.ID, s.Identity, s.LastActivityAt, s.ExpiresAt)
	return database.MapStoreError(err)
}

// Get fetches a session by its opaque id
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, identity, created_at, last_activity_at, expires_at, revoked_at, revoke_reason
		FROM sessions
		WHERE id = $1
	`

	s := &models.Session{}
	var reason *string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.Identity,
		&s.CreatedAt,
		&s.LastActivityAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&reason,
	)
	if err != nil {
		return nil, database.MapStoreError(err)
	}
	if reason != nil {
		s.RevokeReason = *reason
	}

	return s, nil
}

// GetActiveByIdentity returns the live session for an identity, if any.
// At most one exists under the single-session-per-user model.
func (r *SessionRepository) GetActiveByIdentity(ctx context.Context, identity string) (*models.Session, error) {
	query := `
		SELECT id, identity, created_at, last_activity_at, expires_at, revoked_at, revoke_reason
		FROM sessions
		WHERE identity = $1 AND revoked_at IS NULL AND expires_at > CURRENT_TIMESTAMP
		ORDER BY created_at DESC
		LIMIT 1
	`

	s := &models.Session{}
	var reason *string
	err := r.db.Pool.QueryRow(ctx, query, identity).Scan(
		&s.ID,
		&s.Identity,
		&s.CreatedAt,
		&s.LastActivityAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&reason,
	)
	if err != nil {
		return nil, database.MapStoreError(err)
	}
	if reason != nil {
		s.RevokeReason = *reason
	}

	return s, nil
}

// UpdateActivity slides the idle window forward after observed activity
func (r *SessionRepository) UpdateActivity(ctx context.Context, id string, lastActivity, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET last_activity_at = $2, expires_at = $3
		WHERE id = $1 AND revoked_at IS NULL
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, lastActivity, expiresAt)
	if err != nil {
		return database.MapStoreError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Revoke marks a session terminated. Idempotent: revoking twice keeps the
// first revocation timestamp and reason. Unknown ids report ErrNotFound.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time, reason string) error {
	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revoke_reason = COALESCE(revoke_reason, $3)
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, at, reason)
	if err != nil {
		return database.MapStoreError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns all sessions for administrative inspection
func (r *SessionRepository) List(ctx context.Context) ([]*models.Session, error) {
	query := `
		SELECT id, identity, created_at, last_activity_at, expires_at, revoked_at, revoke_reason
		FROM sessions
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapStoreError(err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		var reason *string
		err := rows.Scan(
			&s.ID,
			&s.Identity,
			&s.CreatedAt,
			&s.LastActivityAt,
			&s.ExpiresAt,
			&s.RevokedAt,
			&reason,
		)
		if err != nil {
			return nil, database.MapStoreError(err)
		}
		if reason != nil {
			s.RevokeReason = *reason
		}
		sessions = append(sessions, s)
	}
	return sessions, database.MapStoreError(rows.Err())
}

// DeleteExpired removes sessions that are revoked or past their window
// and returns the number removed
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE revoked_at IS NOT NULL OR expires_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapStoreError(err)
	}
	return tag.RowsAffected(), nil
}
