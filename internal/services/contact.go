package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/auth"
	"github.com/dmitrijs2005/contactkeeper/internal/cache"
	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/config"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/models"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/contactkeeper/internal/storage"
)

// ContactInput carries the fields a caller may set on a contact.
type ContactInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  *time.Time
	Notes     string
}

// ContactView is a contact as returned to callers: the stored record plus
// the owner's current avatar URL, when one exists.
type ContactView struct {
	*models.Contact
	OwnerAvatarURL string
}

// ContactService orchestrates input validation, owner-scoped repository
// calls, and avatar attachment. It holds no state of its own.
type ContactService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	avatars       storage.AvatarStore
	identityCache cache.Identity
	queryTimeout  time.Duration
}

// NewContactService constructs a ContactService using repositories and server config.
func NewContactService(db *sql.DB, m repomanager.RepositoryManager, avatars storage.AvatarStore,
	idc cache.Identity, cfg *config.Config) *ContactService {
	return &ContactService{
		db:            db,
		repomanager:   m,
		avatars:       avatars,
		identityCache: idc,
		queryTimeout:  cfg.QueryTimeout,
	}
}

// Create validates the input and inserts a contact owned by the caller.
func (s *ContactService) Create(ctx context.Context, identity auth.Identity, input *ContactInput) (*ContactView, error) {
	if err := validateContactInput(input); err != nil {
		return nil, err
	}

	contact := &models.Contact{
		OwnerID:   identity.UserID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Birthday:  input.Birthday,
		Notes:     input.Notes,
	}

	var created *models.Contact
	err := dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		created, err = s.repomanager.Contacts(s.db).Create(ctx, contact)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrStorageTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating contact: %v", err)
	}

	return s.attachAvatar(ctx, identity, created), nil
}

// Get returns a single contact of the caller. Absent and foreign-owned
// contacts are the same common.ErrorNotFound.
func (s *ContactService) Get(ctx context.Context, identity auth.Identity, contactID string) (*ContactView, error) {
	var contact *models.Contact
	err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		contact, err = s.repomanager.Contacts(s.db).GetByID(ctx, identity.UserID, contactID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.attachAvatar(ctx, identity, contact), nil
}

// Update applies a partial patch to the caller's contact. Last writer wins;
// updated_at is bumped by the storage layer.
func (s *ContactService) Update(ctx context.Context, identity auth.Identity, contactID string, patch *models.ContactPatch) (*ContactView, error) {
	if err := validateContactPatch(patch); err != nil {
		return nil, err
	}

	var updated *models.Contact
	err := dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		updated, err = s.repomanager.Contacts(s.db).Update(ctx, identity.UserID, contactID, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.attachAvatar(ctx, identity, updated), nil
}

// Delete removes the caller's contact. Deleting an absent or foreign
// contact surfaces common.ErrorNotFound.
func (s *ContactService) Delete(ctx context.Context, identity auth.Identity, contactID string) error {
	return dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.repomanager.Contacts(s.db).Delete(ctx, identity.UserID, contactID)
	})
}

// List returns a page of the caller's contacts.
func (s *ContactService) List(ctx context.Context, identity auth.Identity, offset, limit int) ([]*models.Contact, error) {
	var result []*models.Contact
	err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.repomanager.Contacts(s.db).List(ctx, identity.UserID, offset, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Search returns the caller's contacts matching query. An empty query
// returns all of them.
func (s *ContactService) Search(ctx context.Context, identity auth.Identity, query string) ([]*models.Contact, error) {
	var result []*models.Contact
	err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.repomanager.Contacts(s.db).Search(ctx, identity.UserID, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpcomingBirthdays returns the caller's contacts whose birthday falls
// within withinDays of today, including the December→January wraparound.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, identity auth.Identity, withinDays int) ([]*models.Contact, error) {
	var result []*models.Contact
	err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.repomanager.Contacts(s.db).UpcomingBirthdays(ctx, identity.UserID, withinDays)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// attachAvatar wraps a contact with the owner's current avatar URL. Cache
// and presign failures degrade to a view without an avatar, never an error.
func (s *ContactService) attachAvatar(ctx context.Context, identity auth.Identity, contact *models.Contact) *ContactView {
	view := &ContactView{Contact: contact}

	owner, ok := s.identityCache.Get(ctx, identity.UserID)
	if !ok {
		err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
			var err error
			owner, err = s.repomanager.Users(s.db).GetByID(ctx, identity.UserID)
			return err
		})
		if err != nil {
			return view
		}
		s.identityCache.Set(ctx, owner)
	}

	if owner.AvatarRef == "" {
		return view
	}

	url, err := s.avatars.URL(ctx, owner.AvatarRef)
	if err != nil {
		return view
	}
	view.OwnerAvatarURL = url
	return view
}

// validateContactInput enforces the creation shape: a name is required and
// at least one of email/phone must be present.
func validateContactInput(input *ContactInput) error {
	var fields []string
	if input.FirstName == "" && input.LastName == "" {
		fields = append(fields, "name")
	}
	if input.Email == "" && input.Phone == "" {
		fields = append(fields, "email", "phone")
	}
	if len(fields) > 0 {
		return common.NewValidationError(fields...)
	}
	return nil
}

// validateContactPatch rejects patches that would blank out a required
// field. Nil fields are untouched and therefore always fine.
func validateContactPatch(patch *models.ContactPatch) error {
	var fields []string
	if patch.FirstName != nil && *patch.FirstName == "" && patch.LastName != nil && *patch.LastName == "" {
		fields = append(fields, "name")
	}
	if patch.Email != nil && *patch.Email == "" && patch.Phone != nil && *patch.Phone == "" {
		fields = append(fields, "email", "phone")
	}
	if len(fields) > 0 {
		return common.NewValidationError(fields...)
	}
	return nil
}
