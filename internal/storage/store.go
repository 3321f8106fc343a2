package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

var (
	// ErrNotFound is returned when a mutation targets an unknown record id.
	ErrNotFound = errors.New("storage: recipe not found")
	// ErrDuplicateID is returned when an appended record carries an id that is
	// already taken.
	ErrDuplicateID = errors.New("storage: duplicate recipe id")
)

// StorageError reports a failure to read, write, encode or decode the backing
// data. Op names the failing step.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store owns the local record list. Every read loads fresh data and every
// mutation rewrites the whole list. Implementations serialize mutations so
// concurrent Append and SetPublic calls never lose an update.
type Store interface {
	// Load returns all records. It never falls back to an empty list on
	// failure.
	Load(ctx context.Context) ([]recipe.Record, error)
	// Save replaces the stored list with records.
	Save(ctx context.Context, records []recipe.Record) error
	// Append stores rec and returns the stored copy. A zero ID is replaced by
	// the next unused id; a non-zero ID must not be taken.
	Append(ctx context.Context, rec recipe.Record) (recipe.Record, error)
	// SetPublic marks the record public. Public records stay public.
	SetPublic(ctx context.Context, id uint64) error
	// ListPublic returns the public records in stored order.
	ListPublic(ctx context.Context) ([]recipe.Record, error)
	Close() error
}

func checkCtx(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// nextID returns the next unused id. last is the highest id handed out by
// this process, so ids keep increasing even if records vanish from the file.
func nextID(records []recipe.Record, last uint64) uint64 {
	highest := last
	for _, r := range records {
		if r.ID > highest {
			highest = r.ID
		}
	}
	return highest + 1
}

func appendRecord(records []recipe.Record, rec recipe.Record, last uint64) ([]recipe.Record, recipe.Record, error) {
	if rec.ID == 0 {
		rec.ID = nextID(records, last)
	} else {
		for _, r := range records {
			if r.ID == rec.ID {
				return nil, recipe.Record{}, fmt.Errorf("%w: %d", ErrDuplicateID, rec.ID)
			}
		}
	}
	return append(records, rec), rec, nil
}

func markPublic(records []recipe.Record, id uint64) error {
	for i := range records {
		if records[i].ID == id {
			records[i].Visibility = recipe.Public
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}

func filterPublic(records []recipe.Record) []recipe.Record {
	out := make([]recipe.Record, 0, len(records))
	for _, r := range records {
		if r.IsPublic() {
			out = append(out, r)
		}
	}
	return out
}
