package stock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetStock_And_Available(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetStock("P1", 100))
	require.NoError(t, store.SetStock("P2", 0))

	qty, err := store.Available(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 100, qty)

	qty, err = store.Available(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	_, err = store.Available(ctx, "P3")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryStore_SetStock_Negative(t *testing.T) {
	store := NewMemoryStore()
	assert.ErrorIs(t, store.SetStock("P1", -1), ErrInvalidQuantity)
}

func TestMemoryStore_Forget(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SetStock("P1", 3))

	store.Forget("P1")

	_, err := store.Available(context.Background(), "P1")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestNewMemoryStoreFrom(t *testing.T) {
	store, err := NewMemoryStoreFrom(map[string]int{"P1": 5, "P2": 1})
	require.NoError(t, err)

	qty, err := store.Available(context.Background(), "P2")
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	_, err = NewMemoryStoreFrom(map[string]int{"P1": -5})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Available(ctx, "P1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.SetStock("P1", n)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.Available(ctx, "P1")
		}()
	}
	wg.Wait()

	qty, err := store.Available(ctx, "P1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, qty, 0)
}
