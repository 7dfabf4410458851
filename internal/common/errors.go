// Package common defines shared constants and sentinel errors used across
// the layers of ContactKeeper. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")

	// Service-level errors (generic/internal flow control).
	ErrorInternal         = errors.New("internal error")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenReuse   = errors.New("refresh token reuse detected")

	// Storage errors. ErrStorageTimeout is the only kind callers may retry.
	ErrStorageTimeout = errors.New("storage timeout")
)
