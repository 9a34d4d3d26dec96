package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextIsMonotonicPerDomain(t *testing.T) {
	a := New()

	prev := uint64(0)
	for i := 0; i < 100; i++ {
		got := a.Next("paths")
		require.True(t, got > prev, "values must be strictly increasing")
		prev = got
	}

	// A fresh domain starts over from 1.
	require.Equal(t, uint64(1), a.Next("other"))
}

func TestNextIsUniqueUnderConcurrency(t *testing.T) {
	a := New()

	const goroutines = 16
	const perGoroutine = 500

	results := make(chan uint64, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- a.Next("paths")
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool)
	for v := range results {
		require.False(t, seen[v], "allocator returned a duplicate value")
		seen[v] = true
	}
	require.Equal(t, goroutines*perGoroutine, len(seen))
}
