package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/pkg/timecache"
	"github.com/kestrelbt/kestrel/storage"
)

type torrentShard struct {
	rows map[bittorrent.TorrentID]*torrentRow
	sync.RWMutex
}

// torrentRow fields are guarded by the owning shard's lock.
type torrentRow struct {
	name         string
	infoHash     bittorrent.InfoHash
	status       bittorrent.Status
	supervisor   uuid.UUID
	registeredAt int64
}

func (s *store) torrentShardFor(id bittorrent.TorrentID) *torrentShard {
	return s.torrents[uint64(id)%uint64(len(s.torrents))]
}

func snapshotTorrent(id bittorrent.TorrentID, r *torrentRow) bittorrent.TorrentInfo {
	return bittorrent.TorrentInfo{
		ID:           id,
		Name:         r.name,
		InfoHash:     r.infoHash,
		Status:       r.status,
		SupervisorID: r.supervisor,
		RegisteredAt: timeFromUnixNano(r.registeredAt),
	}
}

func (s *store) PutTorrent(id bittorrent.TorrentID, name string, supervisor uuid.UUID) error {
	s.panicIfClosed()

	shard := s.torrentShardFor(id)
	shard.Lock()

	if _, ok := shard.rows[id]; ok {
		shard.Unlock()
		return storage.ErrDuplicateID
	}

	shard.rows[id] = &torrentRow{
		name:         name,
		infoHash:     bittorrent.UnknownInfoHash,
		status:       bittorrent.Awaiting,
		supervisor:   supervisor,
		registeredAt: timecache.Now().UnixNano(),
	}

	shard.Unlock()
	promTorrentsCount.Inc()
	return nil
}

// AcquireCheck is the one fully serialized operation in the store: the token
// state and the row transition change together under the token mutex.
func (s *store) AcquireCheck(id bittorrent.TorrentID) (bool, error) {
	s.panicIfClosed()

	s.check.Lock()
	defer s.check.Unlock()

	if s.check.held {
		return false, nil
	}

	shard := s.torrentShardFor(id)
	shard.Lock()
	row, ok := shard.rows[id]
	if !ok {
		shard.Unlock()
		return false, storage.ErrNotFound
	}
	row.status = bittorrent.Checking
	shard.Unlock()

	s.check.held = true
	s.check.holder = id
	return true, nil
}

// releaseCheck frees the token if id holds it. A stale release for a previous
// holder is ignored.
func (s *store) releaseCheck(id bittorrent.TorrentID) {
	s.check.Lock()
	if s.check.held && s.check.holder == id {
		s.check.held = false
	}
	s.check.Unlock()
}

func (s *store) SetStatus(id bittorrent.TorrentID, status bittorrent.Status) error {
	s.panicIfClosed()

	shard := s.torrentShardFor(id)
	shard.Lock()
	row, ok := shard.rows[id]
	if !ok {
		shard.Unlock()
		return storage.ErrNotFound
	}
	prev := row.status
	row.status = status
	shard.Unlock()

	if prev == bittorrent.Checking && status != bittorrent.Checking {
		s.releaseCheck(id)
	}
	return nil
}

func (s *store) SetInfoHash(id bittorrent.TorrentID, ih bittorrent.InfoHash) error {
	s.panicIfClosed()

	shard := s.torrentShardFor(id)
	shard.Lock()
	row, ok := shard.rows[id]
	if !ok {
		shard.Unlock()
		return storage.ErrNotFound
	}
	row.infoHash = ih
	shard.Unlock()
	return nil
}

func (s *store) GetTorrent(id bittorrent.TorrentID) (bittorrent.TorrentInfo, error) {
	s.panicIfClosed()

	shard := s.torrentShardFor(id)
	shard.RLock()
	row, ok := shard.rows[id]
	if !ok {
		shard.RUnlock()
		return bittorrent.TorrentInfo{}, storage.ErrNotFound
	}
	info := snapshotTorrent(id, row)
	shard.RUnlock()
	return info, nil
}

func (s *store) GetTorrentByInfoHash(ih bittorrent.InfoHash) (bittorrent.TorrentInfo, error) {
	s.panicIfClosed()

	// The unknown fingerprint is shared by every freshly registered
	// torrent and never matches.
	if !ih.Known() {
		return bittorrent.TorrentInfo{}, storage.ErrNotFound
	}

	return s.scanTorrents(func(r *torrentRow) bool { return r.infoHash == ih })
}

func (s *store) GetTorrentByName(name string) (bittorrent.TorrentInfo, error) {
	s.panicIfClosed()

	return s.scanTorrents(func(r *torrentRow) bool { return r.name == name })
}

func (s *store) scanTorrents(match func(*torrentRow) bool) (bittorrent.TorrentInfo, error) {
	for _, shard := range s.torrents {
		shard.RLock()
		for id, row := range shard.rows {
			if match(row) {
				info := snapshotTorrent(id, row)
				shard.RUnlock()
				return info, nil
			}
		}
		shard.RUnlock()
	}
	return bittorrent.TorrentInfo{}, storage.ErrNotFound
}

func (s *store) AllTorrents() []bittorrent.TorrentInfo {
	s.panicIfClosed()

	var infos []bittorrent.TorrentInfo
	for _, shard := range s.torrents {
		shard.RLock()
		for id, row := range shard.rows {
			infos = append(infos, snapshotTorrent(id, row))
		}
		shard.RUnlock()
	}
	return infos
}

func (s *store) DeleteTorrent(id bittorrent.TorrentID) {
	s.panicIfClosed()

	shard := s.torrentShardFor(id)
	shard.Lock()
	row, ok := shard.rows[id]
	if !ok {
		shard.Unlock()
		return
	}
	wasChecking := row.status == bittorrent.Checking
	delete(shard.rows, id)
	shard.Unlock()

	if wasChecking {
		s.releaseCheck(id)
	}
	promTorrentsCount.Dec()
}
