// Package storage implements the upload-service contract consumed by the
// user flows: store avatar bytes for an owner, hand back an opaque
// reference, and resolve a reference to a servable URL.
package storage

import "context"

// AvatarStore persists avatar images outside the relational store. The
// returned reference is opaque to callers; only URL knows how to resolve it.
type AvatarStore interface {
	Store(ctx context.Context, data []byte, ownerID string) (string, error)
	URL(ctx context.Context, ref string) (string, error)
}
