package models

import "time"

// Revocation reasons recorded on a session and broadcast to live clients
const (
	RevokeReasonLogout     = "logout"
	RevokeReasonSuperseded = "superseded"
	RevokeReasonAdmin      = "admin_revoked"
	RevokeReasonIdle       = "idle_timeout"
)

// Session is the authoritative server-side session record. The client
// holds only the opaque ID.
type Session struct {
	ID             string     `json:"id"`
	Identity       string     `json:"identity"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	RevokeReason   string     `json:"revoke_reason,omitempty"`
}

// IsRevoked checks if the session was explicitly revoked
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpired checks if the idle window has elapsed
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsActive reports whether the session is still honored by the server
func (s *Session) IsActive(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}
