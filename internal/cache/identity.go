// Package cache provides a short-lived cache of user records keyed by id,
// so hot request paths don't hit the relational store for every avatar
// attach. Cache misses and backend failures both fall back to the DB; a
// cache error never fails a request.
package cache

import (
	"context"

	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

// Identity caches user rows by user id.
type Identity interface {
	// Get returns the cached user and true, or nil and false on a miss.
	Get(ctx context.Context, userID string) (*models.User, bool)

	// Set stores the user under its id.
	Set(ctx context.Context, user *models.User)

	// Invalidate drops the cached entry for userID.
	Invalidate(ctx context.Context, userID string)
}

// Noop is the fallback when no cache backend is configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, userID string) (*models.User, bool) { return nil, false }
func (Noop) Set(ctx context.Context, user *models.User)                  {}
func (Noop) Invalidate(ctx context.Context, userID string)               {}
