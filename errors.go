package recipeshare

import (
	"context"
	"errors"

	"github.com/DobryySoul/recipeshare/internal/storage"
)

var (
	// ErrNotFound indicates that no recipe has the requested id.
	ErrNotFound = errors.New("recipeshare: recipe not found")
	// ErrClosed indicates that the node has been closed.
	ErrClosed = errors.New("recipeshare: node is closed")
	// ErrTimeout indicates that the context deadline expired.
	ErrTimeout = errors.New("recipeshare: operation timed out")
	// ErrCanceled indicates that the context was canceled.
	ErrCanceled = errors.New("recipeshare: operation canceled")
)

func mapContextErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return ErrCanceled
		}
		return err
	}
	return nil
}

// mapStoreErr translates store errors to the package sentinels. Storage
// failures are returned as is so callers can match *storage.StorageError.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	return err
}
