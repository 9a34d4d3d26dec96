// Package storage abstracts the shared tables of the session registry so that
// they can be implemented for various backing stores.
package storage

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/pkg/alloc"
	"github.com/kestrelbt/kestrel/pkg/stop"
)

var (
	driversM sync.RWMutex
	drivers  = make(map[string]Driver)
)

// ErrNotFound is the error returned by lookups and mutations addressing a row
// that does not exist.
var ErrNotFound = bittorrent.ClientError("resource does not exist")

// ErrDuplicateID is the error returned when registering a torrent id that
// already has a live row.
var ErrDuplicateID = bittorrent.ClientError("torrent id already registered")

// ErrDriverDoesNotExist is the error returned by NewStore when a store driver
// with that name does not exist.
var ErrDriverDoesNotExist = errors.New("store driver with that name does not exist")

// Driver is the interface used to initialize a new type of Store.
type Driver interface {
	NewStore(cfg interface{}, a alloc.Allocator) (Store, error)
}

// TorrentStore holds one row per registered torrent and owns the global
// verification token.
type TorrentStore interface {
	// PutTorrent creates a row for id in status Awaiting with an unknown
	// info hash, owned by the supervisor identity.
	//
	// If id already has a live row, returns ErrDuplicateID and changes
	// nothing.
	PutTorrent(id bittorrent.TorrentID, name string, supervisor uuid.UUID) error

	// AcquireCheck transitions the row for id to Checking if and only if
	// no row in the table is currently Checking. The check and the
	// transition are atomic with respect to all other callers.
	//
	// Returns false if the token is held elsewhere; ErrNotFound if id has
	// no row.
	AcquireCheck(id bittorrent.TorrentID) (bool, error)

	// SetStatus applies a lifecycle transition to the row for id. No
	// legality check is applied to the transition graph. Moving a row out
	// of Checking releases the verification token.
	SetStatus(id bittorrent.TorrentID, s bittorrent.Status) error

	// SetInfoHash records the computed fingerprint of the torrent.
	SetInfoHash(id bittorrent.TorrentID, ih bittorrent.InfoHash) error

	// GetTorrent returns a snapshot of the row for id.
	GetTorrent(id bittorrent.TorrentID) (bittorrent.TorrentInfo, error)

	// GetTorrentByInfoHash scans for the unique row with the given known
	// fingerprint.
	GetTorrentByInfoHash(ih bittorrent.InfoHash) (bittorrent.TorrentInfo, error)

	// GetTorrentByName scans for the unique row with the given name.
	GetTorrentByName(name string) (bittorrent.TorrentInfo, error)

	// AllTorrents returns an unordered snapshot of every row.
	AllTorrents() []bittorrent.TorrentInfo

	// DeleteTorrent removes the row for id. Deleting an absent row is a
	// no-op; this is the liveness cleanup path and termination signals may
	// be delivered more than once.
	DeleteTorrent(id bittorrent.TorrentID)
}

// PeerStore holds one row per connected peer, keyed by the identity of the
// connection owner.
type PeerStore interface {
	// PutPeer inserts a row for the peer identity, overwriting any
	// existing row with the same identity.
	PutPeer(id uuid.UUID, addr netaddr.IPPort, t bittorrent.TorrentID, s bittorrent.PeerState) error

	// GraduatePeer transitions the peer's state to Seeding. Returns
	// ErrNotFound if the peer has no row.
	GraduatePeer(id uuid.UUID) error

	// GetPeer returns a snapshot of the row for the peer identity.
	GetPeer(id uuid.UUID) (bittorrent.PeerInfo, error)

	// PeersForTorrent returns snapshots of all peers connected for t.
	PeersForTorrent(t bittorrent.TorrentID) []bittorrent.PeerInfo

	// Connected reports whether some peer row for t matches the remote
	// endpoint. Used to avoid duplicate outbound connections.
	Connected(addr netaddr.IPPort, t bittorrent.TorrentID) bool

	// ForEachPeer applies fn to a snapshot of every peer connected for t,
	// in no particular order.
	ForEachPeer(t bittorrent.TorrentID, fn func(bittorrent.PeerInfo))

	// DeletePeer removes the row for the peer identity. Deleting an
	// absent row is a no-op.
	DeletePeer(id uuid.UUID)
}

// PathStore deduplicates path strings per torrent into stable identifiers.
type PathStore interface {
	// PutPath returns the identifier for (path, t), allocating a new one
	// on first insertion. The check-then-insert is atomic per key: two
	// concurrent insertions of the same pair observe the same identifier.
	PutPath(path string, t bittorrent.TorrentID) (bittorrent.PathID, error)

	// GetPath returns the path string for (id, t), or ErrNotFound.
	GetPath(id bittorrent.PathID, t bittorrent.TorrentID) (string, error)

	// DeletePaths bulk-removes every row for t and returns how many rows
	// were removed. Safe to call with zero matches.
	DeletePaths(t bittorrent.TorrentID) int
}

// Store is the full set of registry tables behind one backing implementation.
type Store interface {
	TorrentStore
	PeerStore
	PathStore

	// stop is an interface that expects a Stop method to stop the Store.
	// For more details see the documentation in the stop package.
	stop.Stopper
}

// RegisterDriver makes a Driver available by the provided name.
//
// If called twice with the same name, the name is blank, or if the provided
// Driver is nil, this function panics.
func RegisterDriver(name string, d Driver) {
	if name == "" {
		panic("storage: could not register a Driver with an empty name")
	}
	if d == nil {
		panic("storage: could not register a nil Driver")
	}

	driversM.Lock()
	defer driversM.Unlock()

	if _, dup := drivers[name]; dup {
		panic("storage: RegisterDriver called twice for " + name)
	}

	drivers[name] = d
}

// NewStore attempts to initialize a new Store given the name of a registered
// Driver.
//
// If a driver does not exist, returns ErrDriverDoesNotExist.
func NewStore(name string, cfg interface{}, a alloc.Allocator) (Store, error) {
	driversM.RLock()
	defer driversM.RUnlock()

	d, ok := drivers[name]
	if !ok {
		return nil, ErrDriverDoesNotExist
	}

	return d.NewStore(cfg, a)
}
