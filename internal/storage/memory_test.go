package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

func TestMemoryStoreAppendAndPublish(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Append(ctx, recipe.Record{Name: "Soup"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.ID)

	require.ErrorIs(t, store.SetPublic(ctx, 2), ErrNotFound)
	require.NoError(t, store.SetPublic(ctx, 1))

	public, err := store.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "Soup", public[0].Name)
}

func TestMemoryStoreSeedContinuesIDs(t *testing.T) {
	store := NewMemoryStore(recipe.Record{ID: 5, Name: "Tea", Visibility: recipe.Public})

	rec, err := store.Append(context.Background(), recipe.Record{Name: "Soup"})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), rec.ID)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(recipe.Record{ID: 1, Name: "Tea"})
	ctx := context.Background()

	records, err := store.Load(ctx)
	require.NoError(t, err)
	records[0].Name = "changed"

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Tea", again[0].Name)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, recipe.Record{Name: "r"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, records, n)
	assertUniqueIDs(t, records)
}

func BenchmarkMemoryStoreAppend(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	for b.Loop() {
		_, _ = store.Append(ctx, recipe.Record{Name: "bench"})
	}
}

func BenchmarkMemoryStoreListPublic(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		rec, _ := store.Append(ctx, recipe.Record{Name: "bench"})
		if i%2 == 0 {
			_ = store.SetPublic(ctx, rec.ID)
		}
	}
	for b.Loop() {
		_, _ = store.ListPublic(ctx)
	}
}
