package storage

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/bittorrent"
)

// TestTorrentStore tests the torrent table of a Store implementation against
// the interface contract.
func TestTorrentStore(t *testing.T, s Store) {
	sup := uuid.New()

	// Lookups on an empty table.
	_, err := s.GetTorrent(1)
	require.Equal(t, ErrNotFound, err)
	err = s.SetStatus(1, bittorrent.Started)
	require.Equal(t, ErrNotFound, err)
	_, err = s.AcquireCheck(1)
	require.Equal(t, ErrNotFound, err)

	// A fresh registration starts awaiting with an unknown fingerprint.
	err = s.PutTorrent(1, "a.torrent", sup)
	require.Nil(t, err)

	info, err := s.GetTorrent(1)
	require.Nil(t, err)
	require.Equal(t, bittorrent.Awaiting, info.Status)
	require.Equal(t, bittorrent.UnknownInfoHash, info.InfoHash)
	require.Equal(t, "a.torrent", info.Name)
	require.Equal(t, sup, info.SupervisorID)

	// Re-registering a live id is rejected.
	err = s.PutTorrent(1, "other.torrent", uuid.New())
	require.Equal(t, ErrDuplicateID, err)

	// The unknown fingerprint never matches a scan.
	_, err = s.GetTorrentByInfoHash(bittorrent.UnknownInfoHash)
	require.Equal(t, ErrNotFound, err)

	// Fingerprint and name scans find the unique row.
	ih := bittorrent.InfoHashFromString("00000000000000000001")
	err = s.SetInfoHash(1, ih)
	require.Nil(t, err)

	info, err = s.GetTorrentByInfoHash(ih)
	require.Nil(t, err)
	require.Equal(t, bittorrent.TorrentID(1), info.ID)

	info, err = s.GetTorrentByName("a.torrent")
	require.Nil(t, err)
	require.Equal(t, bittorrent.TorrentID(1), info.ID)

	// The check token is globally exclusive.
	err = s.PutTorrent(2, "b.torrent", uuid.New())
	require.Nil(t, err)

	ok, err := s.AcquireCheck(1)
	require.Nil(t, err)
	require.True(t, ok)

	info, err = s.GetTorrent(1)
	require.Nil(t, err)
	require.Equal(t, bittorrent.Checking, info.Status)

	ok, err = s.AcquireCheck(2)
	require.Nil(t, err)
	require.False(t, ok, "token must be unavailable while torrent 1 is checking")

	// Any transition away from checking frees the token.
	err = s.SetStatus(1, bittorrent.Started)
	require.Nil(t, err)

	ok, err = s.AcquireCheck(2)
	require.Nil(t, err)
	require.True(t, ok, "token must be available once torrent 1 stopped checking")

	// Deleting the checking row frees the token too.
	s.DeleteTorrent(2)
	ok, err = s.AcquireCheck(1)
	require.Nil(t, err)
	require.True(t, ok)

	require.Equal(t, 1, len(s.AllTorrents()))

	// Deletion is idempotent.
	s.DeleteTorrent(1)
	s.DeleteTorrent(1)
	_, err = s.GetTorrent(1)
	require.Equal(t, ErrNotFound, err)
	require.Equal(t, 0, len(s.AllTorrents()))
}

// TestCheckTokenExclusion concurrently races AcquireCheck across many
// torrents and asserts at most one row is ever checking.
func TestCheckTokenExclusion(t *testing.T, s Store) {
	const torrents = 8
	const attempts = 200

	for i := 1; i <= torrents; i++ {
		require.Nil(t, s.PutTorrent(bittorrent.TorrentID(i), "t", uuid.New()))
	}

	var violations, errs int64
	var wg sync.WaitGroup
	for i := 1; i <= torrents; i++ {
		id := bittorrent.TorrentID(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < attempts; j++ {
				ok, err := s.AcquireCheck(id)
				if err != nil {
					atomic.AddInt64(&errs, 1)
					return
				}
				if !ok {
					continue
				}

				var checking int
				for _, info := range s.AllTorrents() {
					if info.Status == bittorrent.Checking {
						checking++
					}
				}
				if checking != 1 {
					atomic.AddInt64(&violations, 1)
				}

				if err := s.SetStatus(id, bittorrent.Stopped); err != nil {
					atomic.AddInt64(&errs, 1)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Zero(t, atomic.LoadInt64(&errs))
	require.Zero(t, atomic.LoadInt64(&violations), "observed more than one checking torrent")

	for i := 1; i <= torrents; i++ {
		s.DeleteTorrent(bittorrent.TorrentID(i))
	}
}

// TestPeerStore tests the peer table of a Store implementation against the
// interface contract.
func TestPeerStore(t *testing.T, s Store) {
	pid := uuid.New()
	addr := netaddr.MustParseIPPort("1.2.3.4:6881")

	_, err := s.GetPeer(pid)
	require.Equal(t, ErrNotFound, err)
	err = s.GraduatePeer(pid)
	require.Equal(t, ErrNotFound, err)

	err = s.PutPeer(pid, addr, 7, bittorrent.Leeching)
	require.Nil(t, err)

	info, err := s.GetPeer(pid)
	require.Nil(t, err)
	require.Equal(t, bittorrent.Leeching, info.State)
	require.Equal(t, bittorrent.TorrentID(7), info.TorrentID)
	require.Equal(t, addr, info.Addr)

	err = s.GraduatePeer(pid)
	require.Nil(t, err)

	info, err = s.GetPeer(pid)
	require.Nil(t, err)
	require.Equal(t, bittorrent.Seeding, info.State)

	// Endpoint existence is scoped to the torrent.
	require.True(t, s.Connected(addr, 7))
	require.False(t, s.Connected(addr, 8))
	require.False(t, s.Connected(netaddr.MustParseIPPort("1.2.3.4:6882"), 7))

	// Scans only see peers of the requested torrent.
	other := uuid.New()
	err = s.PutPeer(other, netaddr.MustParseIPPort("5.6.7.8:51413"), 8, bittorrent.Leeching)
	require.Nil(t, err)

	peers := s.PeersForTorrent(7)
	require.Equal(t, 1, len(peers))
	require.Equal(t, pid, peers[0].ID)

	var visited int
	s.ForEachPeer(7, func(p bittorrent.PeerInfo) {
		visited++
		require.Equal(t, bittorrent.TorrentID(7), p.TorrentID)
	})
	require.Equal(t, 1, visited)

	// Re-putting the same identity overwrites.
	err = s.PutPeer(pid, addr, 7, bittorrent.Leeching)
	require.Nil(t, err)
	info, err = s.GetPeer(pid)
	require.Nil(t, err)
	require.Equal(t, bittorrent.Leeching, info.State)

	s.DeletePeer(pid)
	s.DeletePeer(pid) // idempotent
	_, err = s.GetPeer(pid)
	require.Equal(t, ErrNotFound, err)

	s.DeletePeer(other)
}

// TestPathStore tests the path table of a Store implementation against the
// interface contract.
func TestPathStore(t *testing.T, s Store) {
	_, err := s.GetPath(1, 1)
	require.Equal(t, ErrNotFound, err)

	// Duplicate insertion returns the original identifier.
	id1, err := s.PutPath("a/b/c", 1)
	require.Nil(t, err)
	again, err := s.PutPath("a/b/c", 1)
	require.Nil(t, err)
	require.Equal(t, id1, again)

	// The same path under another torrent is a distinct entry.
	id2, err := s.PutPath("a/b/c", 2)
	require.Nil(t, err)
	require.NotEqual(t, id1, id2)

	path, err := s.GetPath(id1, 1)
	require.Nil(t, err)
	require.Equal(t, "a/b/c", path)

	path, err = s.GetPath(id2, 2)
	require.Nil(t, err)
	require.Equal(t, "a/b/c", path)

	// Bulk deletion only touches the requested torrent.
	_, err = s.PutPath("d/e", 1)
	require.Nil(t, err)

	removed := s.DeletePaths(1)
	require.Equal(t, 2, removed)
	require.Equal(t, 0, s.DeletePaths(1))

	_, err = s.GetPath(id1, 1)
	require.Equal(t, ErrNotFound, err)

	path, err = s.GetPath(id2, 2)
	require.Nil(t, err)
	require.Equal(t, "a/b/c", path)

	s.DeletePaths(2)
}

// TestPathStoreConcurrentInsert races insertions of the same key and asserts
// a single identifier wins.
func TestPathStoreConcurrentInsert(t *testing.T, s Store) {
	const goroutines = 16

	ids := make([]bittorrent.PathID, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.PutPath("races/everywhere", 3)
			require.Nil(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id, "concurrent insertions must agree on one identifier")
	}

	require.Equal(t, 1, s.DeletePaths(3))
}
