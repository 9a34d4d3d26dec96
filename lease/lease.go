// Package lease ties registry rows to the lifetime of the goroutines that own
// them. An owner holds a Guard; a Monitor watches armed Guards and runs a
// cleanup callback exactly once when a Guard is released, whether that release
// was deliberate or came from an unwinding owner.
package lease

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelbt/kestrel/pkg/log"
	"github.com/kestrelbt/kestrel/pkg/stop"
)

// ErrMonitorStopped is returned by Arm after the Monitor has been stopped.
var ErrMonitorStopped = errors.New("lease: monitor stopped")

// A Guard is a structured lifetime handle. Its identity doubles as the owner
// identity of the registry rows it protects.
//
// A Guard must be released exactly by its owner; Release is idempotent.
type Guard struct {
	id   uuid.UUID
	done chan struct{}
	once sync.Once
}

// NewGuard allocates a live Guard with a fresh identity.
func NewGuard() *Guard {
	return &Guard{
		id:   uuid.New(),
		done: make(chan struct{}),
	}
}

// Bind allocates a Guard that is released when ctx ends. Owners whose
// lifetime is already context-shaped use this instead of deferring Release.
func Bind(ctx context.Context) *Guard {
	g := NewGuard()
	go func() {
		<-ctx.Done()
		g.Release()
	}()
	return g
}

// ID returns the owner identity of the Guard.
func (g *Guard) ID() uuid.UUID { return g.id }

// Done returns a channel that is closed once the Guard has been released.
func (g *Guard) Done() <-chan struct{} { return g.done }

// Release marks the owner as terminated. It may be called multiple times;
// only the first call has any effect.
func (g *Guard) Release() {
	g.once.Do(func() { close(g.done) })
}

// A Handle names one armed subscription.
type Handle uuid.UUID

type subscription struct {
	guard     *Guard
	tag       string
	onExpire  func()
	cancelled chan struct{}
}

// A Monitor watches armed Guards and dispatches cleanup when they expire.
//
// The zero value is not usable; call NewMonitor.
type Monitor struct {
	m       sync.Mutex
	subs    map[Handle]*subscription
	closing chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor allocates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		subs:    make(map[Handle]*subscription),
		closing: make(chan struct{}),
	}
}

// Arm subscribes to the expiry of g. When g is released, onExpire runs exactly
// once and the subscription is removed. The tag classifies the subscription
// for logging and introspection.
//
// Arming an already-released Guard is valid: its expiry is delivered
// immediately. This is what lets callers arm before inserting a row, so that
// no termination can fall between the two steps.
func (m *Monitor) Arm(g *Guard, tag string, onExpire func()) (Handle, error) {
	m.m.Lock()
	select {
	case <-m.closing:
		m.m.Unlock()
		return Handle{}, ErrMonitorStopped
	default:
	}

	h := Handle(uuid.New())
	sub := &subscription{
		guard:     g,
		tag:       tag,
		onExpire:  onExpire,
		cancelled: make(chan struct{}),
	}
	m.subs[h] = sub
	m.wg.Add(1)
	m.m.Unlock()

	go m.watch(h, sub)

	return h, nil
}

// Disarm removes a subscription without firing its callback. It is used to
// roll back an Arm whose matching row insertion failed. Disarming an unknown
// or already-expired Handle is a no-op.
func (m *Monitor) Disarm(h Handle) {
	m.m.Lock()
	sub, ok := m.subs[h]
	if ok {
		delete(m.subs, h)
		close(sub.cancelled)
	}
	m.m.Unlock()
}

// Len returns the number of live subscriptions.
func (m *Monitor) Len() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.subs)
}

func (m *Monitor) watch(h Handle, sub *subscription) {
	defer m.wg.Done()

	select {
	case <-sub.guard.Done():
		m.expire(h, sub)
	case <-sub.cancelled:
	case <-m.closing:
	}
}

// expire removes the subscription and fires its callback. The table deletion
// and the callback are decoupled so that a racing Disarm observes at most one
// of them; the callback itself runs outside the lock.
func (m *Monitor) expire(h Handle, sub *subscription) {
	m.m.Lock()
	_, live := m.subs[h]
	if live {
		delete(m.subs, h)
	}
	m.m.Unlock()

	if !live {
		return
	}

	log.Debug("lease: owner expired", log.Fields{
		"owner": sub.guard.ID(),
		"tag":   sub.tag,
	})
	sub.onExpire()
}

// Stop cancels all watchers without firing their callbacks and waits for them
// to exit.
func (m *Monitor) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		m.m.Lock()
		select {
		case <-m.closing:
		default:
			close(m.closing)
		}
		m.subs = make(map[Handle]*subscription)
		m.m.Unlock()

		m.wg.Wait()
		c.Done()
	}()

	return c.Result()
}
