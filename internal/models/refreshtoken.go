package models

import "time"

// RefreshToken is a server-tracked long-lived credential. Revoked is nil
// while the token is still usable; a non-nil value is the revocation
// timestamp kept for reuse detection.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	Revoked   *time.Time
	CreatedAt time.Time
}
