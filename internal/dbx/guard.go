package dbx

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
)

const (
	// maxRetries bounds how often a timed-out storage call is repeated
	// before the timeout surfaces to the caller.
	maxRetries = 2

	retryBackoffBase = 100 * time.Millisecond
)

// WithTimeout runs fn under a per-call deadline. A deadline hit inside fn
// is reported as common.ErrStorageTimeout so callers never see raw
// context errors from the storage layer.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return common.ErrStorageTimeout
	}
	return err
}

// Guarded combines WithTimeout and a bounded exponential-backoff retry:
// only common.ErrStorageTimeout is retried, at most maxRetries times.
// Any other error surfaces immediately.
func Guarded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBackoffBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := WithTimeout(ctx, timeout, fn)
		if errors.Is(err, common.ErrStorageTimeout) {
			return retry.RetryableError(err)
		}
		return err
	})
}
