package repositories

import (
	"context"
	"time"

	"github.com/clinicboard/gatekeeper/internal/database"
	"github.com/clinicboard/gatekeeper/internal/models"
)

// ResetTokenRepository handles database operations for password reset tokens
type ResetTokenRepository struct {
	db *database.DB
}

// NewResetTokenRepository creates a new ResetTokenRepository
func NewResetTokenRepository(db *database.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create persists a new reset token record
func (r *ResetTokenRepository) Create(ctx context.Context, tok *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, token_hash, email, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query, tok.ID, tok.TokenHash, tok.Email, tok.ExpiresAt)
	return database.MapStoreError(err)
}

// GetByTokenHash looks up a token record by the SHA-256 of the plain token
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, token_hash, email, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`

	tok := &models.PasswordResetToken{}
	err := r.db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&tok.ID,
		&tok.TokenHash,
		&tok.Email,
		&tok.ExpiresAt,
		&tok.UsedAt,
		&tok.CreatedAt,
	)
	if err != nil {
		return nil, database.MapStoreError(err)
	}

	return tok, nil
}

// MarkUsed flags a token as consumed; subsequent validations must fail
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`

	tag, err := r.db.Pool.Exec(ctx, query, id, at)
	if err != nil {
		return database.MapStoreError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlreadyUsed
	}
	return nil
}

// Delete removes a token record
func (r *ResetTokenRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM password_reset_tokens WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id)
	return database.MapStoreError(err)
}

// CleanupExpired deletes every token that is used or past its window and
// returns the number removed. Safe to run concurrently with live traffic.
func (r *ResetTokenRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE used_at IS NOT NULL OR expires_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapStoreError(err)
	}
	return tag.RowsAffected(), nil
}
