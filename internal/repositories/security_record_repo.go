package repositories

import (
	"context"
	"time"

	"github.com/clinicboard/gatekeeper/internal/database"
	"github.com/clinicboard/gatekeeper/internal/models"
)

// SecurityRecordRepository handles database operations for per-identity
// lockout records
type SecurityRecordRepository struct {
	db *database.DB
}

// NewSecurityRecordRepository creates a new SecurityRecordRepository
func NewSecurityRecordRepository(db *database.DB) *SecurityRecordRepository {
	return &SecurityRecordRepository{db: db}
}

// Get fetches the security record for an identity
func (r *SecurityRecordRepository) Get(ctx context.Context, identity string) (*models.SecurityRecord, error) {
	query := `
		SELECT identity, email, failed_login_attempts, lockout_until,
		       consecutive_lockouts, last_attempt_at, created_at, updated_at
		FROM security_records
		WHERE identity = $1
	`

	rec := &models.SecurityRecord{}
	err := r.db.Pool.QueryRow(ctx, query, identity).Scan(
		&rec.Identity,
		&rec.Email,
		&rec.FailedLoginAttempts,
		&rec.LockoutUntil,
		&rec.ConsecutiveLockouts,
		&rec.LastAttemptAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapStoreError(err)
	}

	return rec, nil
}

// Upsert writes a security record, creating it on first failed attempt
func (r *SecurityRecordRepository) Upsert(ctx context.Context, rec *models.SecurityRecord) error {
	query := `
		INSERT INTO security_records
			(identity, email, failed_login_attempts, lockout_until, consecutive_lockouts, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO UPDATE SET
			email                 = EXCLUDED.email,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			lockout_until         = EXCLUDED.lockout_until,
			consecutive_lockouts  = EXCLUDED.consecutive_lockouts,
			last_attempt_at       = EXCLUDED.last_attempt_at,
			updated_at            = CURRENT_TIMESTAMP
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.Identity,
		rec.Email,
		rec.FailedLoginAttempts,
		rec.LockoutUntil,
		rec.ConsecutiveLockouts,
		rec.LastAttemptAt,
	)
	return database.MapStoreError(err)
}

// Delete removes a security record
func (r *SecurityRecordRepository) Delete(ctx context.Context, identity string) error {
	query := `DELETE FROM security_records WHERE identity = $1`
	_, err := r.db.Pool.Exec(ctx, query, identity)
	return database.MapStoreError(err)
}

// List returns all security records for administrative sweeps
func (r *SecurityRecordRepository) List(ctx context.Context) ([]*models.SecurityRecord, error) {
	query := `
		SELECT identity, email, failed_login_attempts, lockout_until,
		       consecutive_lockouts, last_attempt_at, created_at, updated_at
		FROM security_records
		ORDER BY last_attempt_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapStoreError(err)
	}
	defer rows.Close()

	var records []*models.SecurityRecord
	for rows.Next() {
		rec := &models.SecurityRecord{}
		err := rows.Scan(
			&rec.Identity,
			&rec.Email,
			&rec.FailedLoginAttempts,
			&rec.LockoutUntil,
			&rec.ConsecutiveLockouts,
			&rec.LastAttemptAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, database.MapStoreError(err)
		}
		records = append(records, rec)
	}
	return records, database.MapStoreError(rows.Err())
}

// DeleteStale removes zeroed records whose last attempt predates the
// retention cutoff. Locked or counting records are never touched.
func (r *SecurityRecordRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM security_records
		WHERE failed_login_attempts = 0
		  AND (lockout_until IS NULL OR lockout_until <= CURRENT_TIMESTAMP)
		  AND last_attempt_at < $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, database.MapStoreError(err)
	}
	return tag.RowsAffected(), nil
}
