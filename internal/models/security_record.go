package models

import (
	"strings"
	"time"
)

// SecurityRecord tracks per-identity login failure state used for
// progressive lockout decisions
type SecurityRecord struct {
	Identity            string     `json:"identity"`
	Email               string     `json:"email"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockoutUntil        *time.Time `json:"lockout_until,omitempty"`
	ConsecutiveLockouts int        `json:"consecutive_lockouts"`
	LastAttemptAt       time.Time  `json:"last_attempt_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLocked reports whether the identity is locked out at the given instant
func (r *SecurityRecord) IsLocked(now time.Time) bool {
	return r.LockoutUntil != nil && now.Before(*r.LockoutUntil)
}

// RemainingLockout returns how long the lockout has left to run.
// Zero when the record is not locked.
func (r *SecurityRecord) RemainingLockout(now time.Time) time.Duration {
	if !r.IsLocked(now) {
		return 0
	}
	return r.LockoutUntil.Sub(now)
}

// NormalizeIdentity canonicalizes a login identity so that lockout,
// reset-token and session state all key off the same string
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
