// Package models defines the data records persisted in the database.
package models

import "time"

// User is an account identity. PasswordHash is a bcrypt hash; the raw
// password is never stored. AvatarRef is an opaque object-storage
// reference, empty when no avatar has been uploaded.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	Disabled     bool
	AvatarRef    string
	CreatedAt    time.Time
}
