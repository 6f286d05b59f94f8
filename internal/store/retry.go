package store

import (
	"context"
	"errors"
)

// Retry runs fn and, if it fails with anything other than a domain outcome
// (ErrNotFound, ErrConflict) or context cancellation, runs it once more.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !retryable(ctx, err) {
		return err
	}
	return fn(ctx)
}

// RetryValue is Retry for operations that return a value.
func RetryValue[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !retryable(ctx, err) {
		return v, err
	}
	return fn(ctx)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrConflict) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
