package memory

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/pkg/timecache"
	"github.com/kestrelbt/kestrel/storage"
)

type peerShard struct {
	rows map[uuid.UUID]*peerRow
	sync.RWMutex
}

// peerRow fields are guarded by the owning shard's lock.
type peerRow struct {
	addr        netaddr.IPPort
	torrentID   bittorrent.TorrentID
	state       bittorrent.PeerState
	connectedAt int64
}

func (s *store) peerShardFor(id uuid.UUID) *peerShard {
	return s.peers[binary.BigEndian.Uint32(id[:4])%uint32(len(s.peers))]
}

func snapshotPeer(id uuid.UUID, r *peerRow) bittorrent.PeerInfo {
	return bittorrent.PeerInfo{
		ID:          id,
		Addr:        r.addr,
		TorrentID:   r.torrentID,
		State:       r.state,
		ConnectedAt: timeFromUnixNano(r.connectedAt),
	}
}

func (s *store) PutPeer(id uuid.UUID, addr netaddr.IPPort, t bittorrent.TorrentID, state bittorrent.PeerState) error {
	s.panicIfClosed()

	shard := s.peerShardFor(id)
	shard.Lock()

	_, existed := shard.rows[id]
	shard.rows[id] = &peerRow{
		addr:        addr,
		torrentID:   t,
		state:       state,
		connectedAt: timecache.Now().UnixNano(),
	}

	shard.Unlock()
	if !existed {
		promPeersCount.Inc()
	}
	return nil
}

func (s *store) GraduatePeer(id uuid.UUID) error {
	s.panicIfClosed()

	shard := s.peerShardFor(id)
	shard.Lock()
	row, ok := shard.rows[id]
	if !ok {
		shard.Unlock()
		return storage.ErrNotFound
	}
	row.state = bittorrent.Seeding
	shard.Unlock()
	return nil
}

func (s *store) GetPeer(id uuid.UUID) (bittorrent.PeerInfo, error) {
	s.panicIfClosed()

	shard := s.peerShardFor(id)
	shard.RLock()
	row, ok := shard.rows[id]
	if !ok {
		shard.RUnlock()
		return bittorrent.PeerInfo{}, storage.ErrNotFound
	}
	info := snapshotPeer(id, row)
	shard.RUnlock()
	return info, nil
}

func (s *store) PeersForTorrent(t bittorrent.TorrentID) []bittorrent.PeerInfo {
	s.panicIfClosed()

	var infos []bittorrent.PeerInfo
	for _, shard := range s.peers {
		shard.RLock()
		for id, row := range shard.rows {
			if row.torrentID == t {
				infos = append(infos, snapshotPeer(id, row))
			}
		}
		shard.RUnlock()
	}
	return infos
}

func (s *store) Connected(addr netaddr.IPPort, t bittorrent.TorrentID) bool {
	s.panicIfClosed()

	for _, shard := range s.peers {
		shard.RLock()
		for _, row := range shard.rows {
			if row.torrentID == t && row.addr == addr {
				shard.RUnlock()
				return true
			}
		}
		shard.RUnlock()
	}
	return false
}

// ForEachPeer applies fn to a per-shard snapshot: fn runs without any shard
// lock held, so it may itself call back into the store.
func (s *store) ForEachPeer(t bittorrent.TorrentID, fn func(bittorrent.PeerInfo)) {
	s.panicIfClosed()

	for _, shard := range s.peers {
		shard.RLock()
		var infos []bittorrent.PeerInfo
		for id, row := range shard.rows {
			if row.torrentID == t {
				infos = append(infos, snapshotPeer(id, row))
			}
		}
		shard.RUnlock()

		for _, info := range infos {
			fn(info)
		}
	}
}

func (s *store) DeletePeer(id uuid.UUID) {
	s.panicIfClosed()

	shard := s.peerShardFor(id)
	shard.Lock()
	_, ok := shard.rows[id]
	if ok {
		delete(shard.rows, id)
	}
	shard.Unlock()

	if ok {
		promPeersCount.Dec()
	}
}
