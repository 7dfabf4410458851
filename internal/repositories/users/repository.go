// Package users provides persistence for account records: the credential
// store behind registration, login, and profile updates.
package users

import (
	"context"

	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

// Repository is the credential-store contract. Email uniqueness is
// enforced by the storage layer; Create surfaces common.ErrDuplicateEmail
// on violation.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id string, passwordHash string) error
	UpdateAvatar(ctx context.Context, id string, avatarRef string) error
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
