// Package services contains the business logic of ContactKeeper. This file
// implements UserService: registration, credential verification, token
// issuance and rotation, and profile updates (password, avatar, email
// confirmation).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/contactkeeper/internal/auth"
	"github.com/dmitrijs2005/contactkeeper/internal/cache"
	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/config"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/models"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/contactkeeper/internal/storage"
)

const minPasswordLength = 8

// dummyHash keeps the unknown-email path of Verify as expensive as the
// known-email path so response timing does not leak account existence.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing parity only"), bcrypt.DefaultCost)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService provides authentication-related operations:
// - Register: create accounts
// - Login/Verify: check credentials and mint tokens
// - Refresh: rotate refresh tokens, detecting reuse
// - Logout, ChangePassword, ConfirmEmail, UploadAvatar, CurrentUser
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	avatars                      storage.AvatarStore
	identityCache                cache.Identity
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	queryTimeout                 time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, avatars storage.AvatarStore,
	idc cache.Identity, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		avatars:                      avatars,
		identityCache:                idc,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		queryTimeout:                 cfg.QueryTimeout,
	}
}

// Register creates a new account. The raw password is bcrypt-hashed and
// never stored. A concurrent registration with the same email loses on the
// storage-level unique index and surfaces common.ErrDuplicateEmail.
func (s *UserService) Register(ctx context.Context, email string, rawPassword string) (*models.User, error) {
	if err := validateCredentials(email, rawPassword); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var created *models.User
	err = dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		repo := s.repomanager.Users(s.db)
		created, err = repo.Create(ctx, &models.User{Email: email, PasswordHash: string(hash)})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) || errors.Is(err, common.ErrStorageTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %v", err)
	}
	return created, nil
}

// Verify checks email+password and returns the account on success. Unknown
// email, wrong password, and disabled accounts are indistinguishable: all
// three return common.ErrInvalidCredentials.
func (s *UserService) Verify(ctx context.Context, email string, rawPassword string) (*models.User, error) {
	var user *models.User
	err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		user, err = s.repomanager.Users(s.db).GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn a compare anyway, see dummyHash
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(rawPassword))
			return nil, common.ErrInvalidCredentials
		}
		if errors.Is(err, common.ErrStorageTimeout) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(rawPassword)); err != nil {
		return nil, common.ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}

// Login verifies credentials and, on success, returns a new TokenPair.
func (s *UserService) Login(ctx context.Context, email string, rawPassword string) (*TokenPair, error) {
	user, err := s.Verify(ctx, email, rawPassword)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// Refresh rotates a refresh token and mints a fresh TokenPair. The
// presented token is revoked and replaced in one transaction; of two
// concurrent calls with the same token exactly one succeeds. The loser —
// and anyone replaying a stolen token — gets common.ErrTokenReuse, which
// also revokes every session of the affected user.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair

	err := dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repoTx := s.repomanager.RefreshTokens(tx)

			token, err := repoTx.Consume(ctx, refreshToken)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.ErrorNotFound
				}
				return fmt.Errorf("error consuming refresh token: %v", err)
			}

			if token.Expires.Before(time.Now()) {
				return common.ErrTokenExpired
			}

			var genErr error
			pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
			return genErr
		})
	})
	if errors.Is(err, common.ErrorNotFound) {
		// losing path: nothing was written, classify outside the tx so a
		// reuse-triggered mass revocation actually commits.
		return nil, s.classifyLosingToken(ctx, refreshToken)
	}
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// classifyLosingToken decides why Consume found nothing to revoke: a token
// that exists but is already revoked means reuse, anything else is invalid.
// Detected reuse revokes every session of the affected user.
func (s *UserService) classifyLosingToken(ctx context.Context, refreshToken string) error {
	repo := s.repomanager.RefreshTokens(s.db)

	return dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		existing, err := repo.Find(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrTokenInvalid
			}
			return fmt.Errorf("error searching refresh token: %v", err)
		}

		if existing.Revoked != nil {
			if err := repo.RevokeAllForUser(ctx, existing.UserID); err != nil {
				return fmt.Errorf("error revoking user sessions: %v", err)
			}
			return common.ErrTokenReuse
		}
		return common.ErrTokenInvalid
	})
}

// Logout revokes a refresh token. Revoking an unknown or already-revoked
// token is a successful no-op.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	return dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.repomanager.RefreshTokens(s.db).Revoke(ctx, refreshToken)
	})
}

// ChangePassword replaces the account's password hash and kills every
// active session of the user.
func (s *UserService) ChangePassword(ctx context.Context, userID string, newRawPassword string) error {
	if len(newRawPassword) < minPasswordLength {
		return common.NewValidationError("password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newRawPassword), bcrypt.DefaultCost)
	if err != nil {
		return common.ErrorInternal
	}

	err = dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.repomanager.Users(tx).SetPassword(ctx, userID, string(hash)); err != nil {
				return fmt.Errorf("error updating password: %v", err)
			}
			if err := s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, userID); err != nil {
				return fmt.Errorf("error revoking user sessions: %v", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.identityCache.Invalidate(ctx, userID)
	return nil
}

// ConfirmEmail marks the account's email as verified. Idempotent.
func (s *UserService) ConfirmEmail(ctx context.Context, userID string) error {
	err := dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.repomanager.Users(s.db).MarkVerified(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.identityCache.Invalidate(ctx, userID)
	return nil
}

// UploadAvatar stores the avatar bytes, records the new reference on the
// account, and returns a presigned URL for the fresh image.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", common.NewValidationError("avatar")
	}

	ref, err := s.avatars.Store(ctx, data, userID)
	if err != nil {
		return "", fmt.Errorf("error storing avatar: %v", err)
	}

	err = dbx.WithTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.repomanager.Users(s.db).UpdateAvatar(ctx, userID, ref)
	})
	if err != nil {
		return "", err
	}

	s.identityCache.Invalidate(ctx, userID)

	url, err := s.avatars.URL(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("error presigning avatar url: %v", err)
	}
	return url, nil
}

// CurrentUser returns the account for an authenticated identity, consulting
// the identity cache before the database.
func (s *UserService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	if user, ok := s.identityCache.Get(ctx, userID); ok {
		return user, nil
	}

	var user *models.User
	err := dbx.Guarded(ctx, s.queryTimeout, func(ctx context.Context) error {
		var err error
		user, err = s.repomanager.Users(s.db).GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.identityCache.Set(ctx, user)
	return user, nil
}

// --- helpers below ---

func validateCredentials(email string, rawPassword string) error {
	var fields []string
	if email == "" || !strings.Contains(email, "@") {
		fields = append(fields, "email")
	}
	if len(rawPassword) < minPasswordLength {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return common.NewValidationError(fields...)
	}
	return nil
}

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
