package engine

import (
	"context"
	"errors"
)

var (
	// ErrAllocationLimitExceeded is returned when a table would grow past
	// the configured allocation limit.
	ErrAllocationLimitExceeded = errors.New("allocation exceeds limit")

	// ErrResultConsumed is returned when a lazy result is iterated twice.
	ErrResultConsumed = errors.New("lazy result has already been consumed")
)

// IsCancellation reports whether err stems from a cancelled or expired
// context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsResourceLimit reports whether err stems from the allocation limit.
func IsResourceLimit(err error) bool {
	return errors.Is(err, ErrAllocationLimitExceeded)
}

// CheckCancellation returns the context error if ctx is done.
func CheckCancellation(ctx context.Context) error {
	return ctx.Err()
}
