package models

import "time"

// RefreshToken is one rotating refresh session. Each successful refresh
// revokes the row and mints a successor, so a replayed token is always
// already revoked.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the session can still be exchanged at the
// given instant.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}
