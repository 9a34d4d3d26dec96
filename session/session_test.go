package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/lease"
	"github.com/kestrelbt/kestrel/pkg/alloc"
	"github.com/kestrelbt/kestrel/storage"
	"github.com/kestrelbt/kestrel/storage/memory"
)

func createSession(t *testing.T) *Session {
	t.Helper()

	a := alloc.New()
	store, err := memory.New(memory.Config{TorrentShardCount: 16, PeerShardCount: 16}, a)
	require.Nil(t, err)

	return NewWithStore(store, a)
}

func waitForNotFound(t *testing.T, lookup func() error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lookup() == storage.ErrNotFound {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("row was never reclaimed")
}

func TestRegisterTorrent(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	sup := lease.NewGuard()
	defer sup.Release()

	require.Nil(t, s.RegisterTorrent(sup, "a.torrent", 1))

	info, err := s.Torrent(1)
	require.Nil(t, err)
	require.Equal(t, bittorrent.Awaiting, info.Status)
	require.Equal(t, bittorrent.UnknownInfoHash, info.InfoHash)
	require.Equal(t, sup.ID(), info.SupervisorID)

	// A second registration of a live id is rejected and does not disturb
	// the original row.
	err = s.RegisterTorrent(lease.NewGuard(), "b.torrent", 1)
	require.Equal(t, storage.ErrDuplicateID, err)

	info, err = s.Torrent(1)
	require.Nil(t, err)
	require.Equal(t, "a.torrent", info.Name)
}

func TestSupervisorTerminationReclaimsTorrent(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	sup := lease.NewGuard()
	require.Nil(t, s.RegisterTorrent(sup, "a.torrent", 1))

	s.CountersFor(1).AddUploaded(10)

	sup.Release()

	waitForNotFound(t, func() error {
		_, err := s.Torrent(1)
		return err
	})

	// Counters are reclaimed along with the row.
	uploaded, _, _ := s.CountersFor(1).Snapshot()
	require.Equal(t, int64(0), uploaded)
}

func TestRegisterDeadSupervisorLeaksNothing(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	sup := lease.NewGuard()
	sup.Release()

	// Registration with an already-terminated supervisor may succeed
	// transiently, but the row must be reclaimed.
	err := s.RegisterTorrent(sup, "a.torrent", 1)
	require.Nil(t, err)

	waitForNotFound(t, func() error {
		_, err := s.Torrent(1)
		return err
	})
}

func TestCheckTokenHandoff(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	sup1, sup2 := lease.NewGuard(), lease.NewGuard()
	defer sup1.Release()
	defer sup2.Release()

	require.Nil(t, s.RegisterTorrent(sup1, "a.torrent", 1))
	require.Nil(t, s.RegisterTorrent(sup2, "b.torrent", 2))

	ok, err := s.AcquireCheck(1)
	require.Nil(t, err)
	require.True(t, ok)

	ok, err = s.AcquireCheck(2)
	require.Nil(t, err)
	require.False(t, ok)

	require.Nil(t, s.SetTorrentStatus(1, bittorrent.Started))

	ok, err = s.AcquireCheck(2)
	require.Nil(t, err)
	require.True(t, ok)
}

func TestCheckingSupervisorDeathFreesToken(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	sup1, sup2 := lease.NewGuard(), lease.NewGuard()
	defer sup2.Release()

	require.Nil(t, s.RegisterTorrent(sup1, "a.torrent", 1))
	require.Nil(t, s.RegisterTorrent(sup2, "b.torrent", 2))

	ok, err := s.AcquireCheck(1)
	require.Nil(t, err)
	require.True(t, ok)

	sup1.Release()
	waitForNotFound(t, func() error {
		_, err := s.Torrent(1)
		return err
	})

	ok, err = s.AcquireCheck(2)
	require.Nil(t, err)
	require.True(t, ok, "death of the checking torrent's supervisor must free the token")
}

func TestPeerLifecycle(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	conn := lease.NewGuard()
	addr := netaddr.MustParseIPPort("1.2.3.4:6881")

	require.Nil(t, s.AddPeer(conn, addr, 7, bittorrent.Leeching))
	require.Nil(t, s.MarkSeeding(conn.ID()))

	info, err := s.Peer(conn.ID())
	require.Nil(t, err)
	require.Equal(t, bittorrent.Seeding, info.State)
	require.Equal(t, bittorrent.TorrentID(7), info.TorrentID)

	require.True(t, s.Connected(addr, 7))

	conn.Release()
	waitForNotFound(t, func() error {
		_, err := s.Peer(conn.ID())
		return err
	})
	require.False(t, s.Connected(addr, 7))
}

func TestInfoHashLookup(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	sup := lease.NewGuard()
	defer sup.Release()

	require.Nil(t, s.RegisterTorrent(sup, "a.torrent", 1))

	ih := bittorrent.InfoHashFromString("00000000000000000001")
	require.Nil(t, s.SetInfoHash(1, ih))

	info, err := s.TorrentByInfoHash(ih)
	require.Nil(t, err)
	require.Equal(t, bittorrent.TorrentID(1), info.ID)

	info, err = s.TorrentByName("a.torrent")
	require.Nil(t, err)
	require.Equal(t, bittorrent.TorrentID(1), info.ID)
}

func TestPathsThroughSession(t *testing.T) {
	s := createSession(t)
	defer func() { s.Stop().Wait() }()

	id1, err := s.AddPath("a/b", 1)
	require.Nil(t, err)
	again, err := s.AddPath("a/b", 1)
	require.Nil(t, err)
	require.Equal(t, id1, again)

	path, err := s.Path(id1, 1)
	require.Nil(t, err)
	require.Equal(t, "a/b", path)

	require.Equal(t, 1, s.RemovePaths(1))
	_, err = s.Path(id1, 1)
	require.Equal(t, storage.ErrNotFound, err)
}
