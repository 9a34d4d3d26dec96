package lease

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestExpireFiresOnce(t *testing.T) {
	m := NewMonitor()
	defer func() { m.Stop().Wait() }()

	g := NewGuard()
	var fired int32
	_, err := m.Arm(g, "peer", func() { atomic.AddInt32(&fired, 1) })
	require.Nil(t, err)
	require.Equal(t, 1, m.Len())

	g.Release()
	g.Release() // idempotent

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
	waitFor(t, func() bool { return m.Len() == 0 })

	// Give a double delivery every chance to surface.
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestArmReleasedGuardFiresImmediately(t *testing.T) {
	m := NewMonitor()
	defer func() { m.Stop().Wait() }()

	g := NewGuard()
	g.Release()

	var fired int32
	_, err := m.Arm(g, "torrent(1)", func() { atomic.AddInt32(&fired, 1) })
	require.Nil(t, err)

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
}

func TestDisarmSuppressesCallback(t *testing.T) {
	m := NewMonitor()
	defer func() { m.Stop().Wait() }()

	g := NewGuard()
	var fired int32
	h, err := m.Arm(g, "peer", func() { atomic.AddInt32(&fired, 1) })
	require.Nil(t, err)

	m.Disarm(h)
	waitFor(t, func() bool { return m.Len() == 0 })

	g.Release()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))

	// Disarming again is a no-op.
	m.Disarm(h)
}

func TestStopCancelsWithoutFiring(t *testing.T) {
	m := NewMonitor()

	g := NewGuard()
	var fired int32
	_, err := m.Arm(g, "peer", func() { atomic.AddInt32(&fired, 1) })
	require.Nil(t, err)

	m.Stop().Wait()

	g.Release()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))

	_, err = m.Arm(NewGuard(), "peer", func() {})
	require.Equal(t, ErrMonitorStopped, err)
}

func TestBindReleasesWithContext(t *testing.T) {
	m := NewMonitor()
	defer func() { m.Stop().Wait() }()

	ctx, cancel := context.WithCancel(context.Background())
	g := Bind(ctx)

	var fired int32
	_, err := m.Arm(g, "peer", func() { atomic.AddInt32(&fired, 1) })
	require.Nil(t, err)

	cancel()
	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
}
