package storage

import (
	"context"
	"sync"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

type memoryStore struct {
	mu      sync.Mutex
	records []recipe.Record
	lastID  uint64
}

// NewMemoryStore returns an ephemeral store. Records are lost when the
// process exits.
func NewMemoryStore(seed ...recipe.Record) Store {
	s := &memoryStore{records: recipe.Clone(seed)}
	s.lastID = nextID(s.records, 0) - 1
	return s
}

func (s *memoryStore) Load(ctx context.Context) ([]recipe.Record, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := recipe.Clone(s.records)
	s.mu.Unlock()
	return out, nil
}

func (s *memoryStore) Save(ctx context.Context, records []recipe.Record) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.records = recipe.Clone(records)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Append(ctx context.Context, rec recipe.Record) (recipe.Record, error) {
	if err := checkCtx(ctx); err != nil {
		return recipe.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, stored, err := appendRecord(s.records, rec, s.lastID)
	if err != nil {
		return recipe.Record{}, err
	}
	s.records = records
	if stored.ID > s.lastID {
		s.lastID = stored.ID
	}
	return stored, nil
}

func (s *memoryStore) SetPublic(ctx context.Context, id uint64) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return markPublic(s.records, id)
}

func (s *memoryStore) ListPublic(ctx context.Context) ([]recipe.Record, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := filterPublic(s.records)
	s.mu.Unlock()
	return out, nil
}

func (s *memoryStore) Close() error {
	return nil
}
