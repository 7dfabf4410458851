package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const contactColumns = `id, owner_id, first_name, last_name, email, phone, birthday, notes, created_at, updated_at`

func scanContact(scan func(dest ...any) error) (*models.Contact, error) {
	c := &models.Contact{}
	var birthday sql.NullTime
	err := scan(&c.ID, &c.OwnerID, &c.FirstName, &c.LastName, &c.Email,
		&c.Phone, &birthday, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if birthday.Valid {
		t := birthday.Time
		c.Birthday = &t
	}
	return c, nil
}

func scanContactRow(row *sql.Row) (*models.Contact, error) {
	c, err := scanContact(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func collectContacts(rows *sql.Rows) ([]*models.Contact, error) {
	defer rows.Close()

	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func nullBirthday(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// Create inserts a new contact for its owner and returns the stored row.
func (r *PostgresRepository) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	query := `
		INSERT INTO contacts (owner_id, first_name, last_name, email, phone, birthday, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + contactColumns + `
	`
	row := r.db.QueryRowContext(ctx, query,
		contact.OwnerID, contact.FirstName, contact.LastName,
		contact.Email, contact.Phone, nullBirthday(contact.Birthday), contact.Notes)
	return scanContactRow(row)
}

// GetByID returns the contact only when it belongs to ownerID. Absent and
// foreign-owned rows both yield common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE id = $1 AND owner_id = $2
	`
	return scanContactRow(r.db.QueryRowContext(ctx, query, id, ownerID))
}

// Update applies a partial patch; nil fields keep their stored values.
// Last writer wins; updated_at is bumped on every write.
func (r *PostgresRepository) Update(ctx context.Context, ownerID, id string, patch *models.ContactPatch) (*models.Contact, error) {
	query := `
		UPDATE contacts SET
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			email = COALESCE($5, email),
			phone = COALESCE($6, phone),
			birthday = COALESCE($7, birthday),
			notes = COALESCE($8, notes),
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + contactColumns + `
	`
	row := r.db.QueryRowContext(ctx, query, id, ownerID,
		patch.FirstName, patch.LastName, patch.Email, patch.Phone,
		nullBirthday(patch.Birthday), patch.Notes)
	return scanContactRow(row)
}

// Delete removes the contact. Deleting an already-deleted or foreign
// contact surfaces common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	query := `
		DELETE FROM contacts
		WHERE id = $1 AND owner_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// List returns a page of the owner's contacts ordered by name, then
// creation time.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, offset, limit int) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE owner_id = $1
		ORDER BY first_name ASC, last_name ASC, created_at ASC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectContacts(rows)
}

// Search matches the query as a case-insensitive substring of name, email
// or phone. An empty query returns all of the owner's contacts. Ordering
// is name ascending, then created_at ascending for ties.
func (r *PostgresRepository) Search(ctx context.Context, ownerID, query string) ([]*models.Contact, error) {
	stmt := `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE owner_id = $1
		  AND ($2 = ''
		       OR first_name ILIKE '%' || $2 || '%'
		       OR last_name ILIKE '%' || $2 || '%'
		       OR email ILIKE '%' || $2 || '%'
		       OR phone ILIKE '%' || $2 || '%')
		ORDER BY first_name ASC, last_name ASC, created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, stmt, ownerID, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectContacts(rows)
}

// UpcomingBirthdays returns the owner's contacts whose birthday (year
// ignored) falls within withinDays of today, including the Dec–Jan
// wraparound.
func (r *PostgresRepository) UpcomingBirthdays(ctx context.Context, ownerID string, withinDays int) ([]*models.Contact, error) {
	start, end, wraps := BirthdayWindow(time.Now(), withinDays)

	cond := `to_char(birthday, 'MMDD') BETWEEN $2 AND $3`
	if wraps {
		cond = `(to_char(birthday, 'MMDD') >= $2 OR to_char(birthday, 'MMDD') <= $3)`
	}

	stmt := `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE owner_id = $1
		  AND birthday IS NOT NULL
		  AND ` + cond + `
		ORDER BY to_char(birthday, 'MMDD') ASC, first_name ASC
	`
	rows, err := r.db.QueryContext(ctx, stmt, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectContacts(rows)
}
