// Package alloc provides monotonically increasing unique integers, scoped by
// a named domain. The registry draws path identifiers from one such domain;
// other subsystems of the client draw their own.
package alloc

import (
	"sync"
	"sync/atomic"
)

// An Allocator hands out unique integers per domain.
type Allocator interface {
	// Next returns an integer never before returned for this domain.
	// Successive calls return strictly increasing values. Next is safe for
	// concurrent use.
	Next(domain string) uint64
}

// New returns an in-memory Allocator. Counters start at 1.
func New() Allocator {
	return &allocator{counters: make(map[string]*uint64)}
}

type allocator struct {
	m        sync.Mutex
	counters map[string]*uint64
}

func (a *allocator) Next(domain string) uint64 {
	a.m.Lock()
	c, ok := a.counters[domain]
	if !ok {
		c = new(uint64)
		a.counters[domain] = c
	}
	a.m.Unlock()

	return atomic.AddUint64(c, 1)
}
