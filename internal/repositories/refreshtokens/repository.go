// Package refreshtokens provides the revocable store behind refresh-token
// rotation. Tokens are never deleted on rotation; they are marked revoked
// so a replayed token is recognizable as reuse.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

// Repository is the refresh-token store contract.
//
// Consume is the rotation primitive: it atomically revokes a still-active
// token and returns its row, so of two concurrent refresh calls exactly
// one wins. Find serves the reuse check on the losing path.
type Repository interface {
	Create(ctx context.Context, userID string, token string, validity time.Duration) error
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
