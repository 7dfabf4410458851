package models

import "time"

// Contact is a single address-book entry. OwnerID is set at creation and
// never changes; every repository operation is scoped by it.
type Contact struct {
	ID        string
	OwnerID   string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  *time.Time
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactPatch carries a partial update. Nil fields are left unchanged.
type ContactPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Birthday  *time.Time
	Notes     *string
}
