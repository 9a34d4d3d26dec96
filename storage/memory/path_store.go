package memory

import (
	"sync"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/storage"
)

// pathKey is the dedup key: the same path string under two torrents is two
// distinct entries.
type pathKey struct {
	torrentID bittorrent.TorrentID
	path      string
}

// pathRef is the lookup key handed back to callers.
type pathRef struct {
	torrentID bittorrent.TorrentID
	id        bittorrent.PathID
}

// pathTable is a single coarsely locked table. Path insertion happens once
// per file at torrent setup and is not latency-critical; the single lock also
// makes the check-then-allocate-then-insert trivially atomic per key.
type pathTable struct {
	ids     map[pathKey]bittorrent.PathID
	strings map[pathRef]string
	sync.RWMutex
}

func (s *store) PutPath(path string, t bittorrent.TorrentID) (bittorrent.PathID, error) {
	s.panicIfClosed()

	key := pathKey{torrentID: t, path: path}

	s.paths.Lock()
	if id, ok := s.paths.ids[key]; ok {
		s.paths.Unlock()
		return id, nil
	}

	id := bittorrent.PathID(s.alloc.Next(PathDomain))
	s.paths.ids[key] = id
	s.paths.strings[pathRef{torrentID: t, id: id}] = path
	s.paths.Unlock()

	promPathsCount.Inc()
	return id, nil
}

func (s *store) GetPath(id bittorrent.PathID, t bittorrent.TorrentID) (string, error) {
	s.panicIfClosed()

	s.paths.RLock()
	path, ok := s.paths.strings[pathRef{torrentID: t, id: id}]
	s.paths.RUnlock()

	if !ok {
		return "", storage.ErrNotFound
	}
	return path, nil
}

func (s *store) DeletePaths(t bittorrent.TorrentID) int {
	s.panicIfClosed()

	s.paths.Lock()
	var removed int
	for ref, path := range s.paths.strings {
		if ref.torrentID != t {
			continue
		}
		delete(s.paths.strings, ref)
		delete(s.paths.ids, pathKey{torrentID: t, path: path})
		removed++
	}
	s.paths.Unlock()

	promPathsCount.Sub(float64(removed))
	return removed
}
