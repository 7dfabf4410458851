package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, password_hash, verified, disabled, avatar_ref, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash,
		&user.Verified, &user.Disabled, &user.AvatarRef, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// Create inserts a new user. A duplicate email (case-insensitive, backed
// by a unique index on LOWER(email)) returns common.ErrDuplicateEmail.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// GetByEmail looks a user up case-insensitively.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE LOWER(email) = LOWER($1)
	`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// MarkVerified flips the verified flag. Idempotent.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users SET verified = true
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetPassword stores a new password hash. Idempotent.
func (r *PostgresRepository) SetPassword(ctx context.Context, id string, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateAvatar stores the opaque avatar reference for the user.
func (r *PostgresRepository) UpdateAvatar(ctx context.Context, id string, avatarRef string) error {
	query := `
		UPDATE users SET avatar_ref = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, avatarRef); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetDisabled soft-disables (or re-enables) an account; users are never
// physically deleted.
func (r *PostgresRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	query := `
		UPDATE users SET disabled = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, disabled); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
