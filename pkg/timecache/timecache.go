// Package timecache provides a cache for the system clock. Registry rows are
// timestamped on every insert; reading a cached clock keeps that off the hot
// path. The time is stored as nanoseconds since the Unix Epoch in one int64
// accessed with atomic primitives, without locking.
//
// The package runs a global singleton TimeCache that is updated every second.
package timecache

import (
	"sync"
	"sync/atomic"
	"time"
)

var t *TimeCache

func init() {
	t = New()
	go t.Run(1 * time.Second)
}

// A TimeCache is a cache for the current system time, with second precision
// and nanosecond resolution.
type TimeCache struct {
	// clock saves the current time's nanoseconds since the Epoch.
	// Must be accessed atomically.
	clock int64

	closed  chan struct{}
	running chan struct{}
	m       sync.Mutex
}

// New returns a new TimeCache instance. The TimeCache must be started to
// update the time.
func New() *TimeCache {
	return &TimeCache{
		clock:   time.Now().UnixNano(),
		closed:  make(chan struct{}),
		running: make(chan struct{}),
	}
}

// Run runs the TimeCache, updating the cached clock value once every interval
// and blocks until Stop is called.
//
// Run must be called at most once.
func (t *TimeCache) Run(interval time.Duration) {
	t.m.Lock()
	select {
	case <-t.running:
		panic("timecache: Run called multiple times")
	default:
	}
	close(t.running)
	t.m.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			atomic.StoreInt64(&t.clock, now.UnixNano())
		case <-t.closed:
			return
		}
	}
}

// Stop stops the TimeCache's updates.
func (t *TimeCache) Stop() {
	t.m.Lock()
	defer t.m.Unlock()

	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
}

// Now returns the cached time.
func (t *TimeCache) Now() time.Time {
	return time.Unix(0, atomic.LoadInt64(&t.clock))
}

// Now returns the global TimeCache's cached time.
func Now() time.Time {
	return t.Now()
}
