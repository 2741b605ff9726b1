package number

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStartsAtOne(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	first, err := store.Next(ctx, "ACME", "20260310")
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := store.Next(ctx, "ACME", "20260310")
	require.NoError(t, err)
	assert.Equal(t, 2, second)
}

func TestNextKeysAreIndependent(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.Next(ctx, "ACME", "20260310")
	require.NoError(t, err)

	otherDay, err := store.Next(ctx, "ACME", "20260311")
	require.NoError(t, err)
	assert.Equal(t, 1, otherDay)

	otherTenant, err := store.Next(ctx, "GLOBEX", "20260310")
	require.NoError(t, err)
	assert.Equal(t, 1, otherTenant)
}

func TestConcurrentUniqueness(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	results := make(chan int, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := store.Next(ctx, "ACME", "20260310")
			assert.NoError(t, err)
			results <- seq
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for seq := range results {
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines)
}
