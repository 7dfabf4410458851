// Package contacts provides persistence for address-book entries. Every
// operation is scoped by the owner's user id: a contact that is absent and
// a contact owned by someone else are indistinguishable to a caller.
package contacts

import (
	"context"

	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

// Repository is the contact-store contract. Reads of foreign contacts
// surface common.ErrorNotFound, never the row.
type Repository interface {
	Create(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.Contact, error)
	Update(ctx context.Context, ownerID, id string, patch *models.ContactPatch) (*models.Contact, error)
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string, offset, limit int) ([]*models.Contact, error)
	Search(ctx context.Context, ownerID, query string) ([]*models.Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID string, withinDays int) ([]*models.Contact, error)
}
