package models

import "time"

// PasswordResetToken represents a single-use short-lived reset token.
// Only the SHA-256 hash of the token is stored.
type PasswordResetToken struct {
	ID        string     `json:"id"`
	TokenHash string     `json:"-"` // Never exposed
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsExpired checks if the token has expired
func (t *PasswordResetToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsUsed checks if the token has already been consumed
func (t *PasswordResetToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsValid checks if the token is still consumable (not expired and not used)
func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsUsed()
}
