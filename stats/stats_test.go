package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	r := NewRepository()

	c := r.For(7)
	c.AddUploaded(100)
	c.AddUploaded(50)

	uploaded, downloaded, left := c.Snapshot()
	require.Equal(t, int64(150), uploaded)
	require.Equal(t, int64(0), downloaded)
	require.Equal(t, int64(0), left)

	// left moves in both directions.
	c.AdjustLeft(1000)
	c.AdjustLeft(-300)
	_, _, left = c.Snapshot()
	require.Equal(t, int64(700), left)
}

func TestRepositoryIsPerTorrent(t *testing.T) {
	r := NewRepository()

	r.For(1).AddDownloaded(10)
	r.For(2).AddDownloaded(20)

	_, downloaded, _ := r.For(1).Snapshot()
	require.Equal(t, int64(10), downloaded)
	_, downloaded, _ = r.For(2).Snapshot()
	require.Equal(t, int64(20), downloaded)

	require.Same(t, r.For(1), r.For(1))
	require.Equal(t, 2, r.Len())

	r.Remove(1)
	require.Equal(t, 1, r.Len())

	// A removed torrent starts over.
	_, downloaded, _ = r.For(1).Snapshot()
	require.Equal(t, int64(0), downloaded)
}

func TestCountersConcurrentAdds(t *testing.T) {
	r := NewRepository()

	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := r.For(7)
			for j := 0; j < perGoroutine; j++ {
				c.AddUploaded(1)
			}
		}()
	}
	wg.Wait()

	uploaded, _, _ := r.For(7).Snapshot()
	require.Equal(t, int64(goroutines*perGoroutine), uploaded)
}
