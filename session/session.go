// Package session wires the registry tables, the lease monitor, and the
// transfer counters into one process-wide service. A Session is created
// explicitly and passed by handle; there is no package-level singleton.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/lease"
	"github.com/kestrelbt/kestrel/pkg/alloc"
	"github.com/kestrelbt/kestrel/pkg/log"
	"github.com/kestrelbt/kestrel/pkg/stop"
	"github.com/kestrelbt/kestrel/stats"
	"github.com/kestrelbt/kestrel/storage"
)

// tagPeer classifies peer-owner subscriptions on the monitor.
const tagPeer = "peer"

// StoreConfig names a storage driver and carries its un-decoded options.
type StoreConfig struct {
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// Config holds the configuration of a Session.
type Config struct {
	Storage StoreConfig `yaml:"storage"`
}

// A Session is the coordination core of the client: it tracks which torrents
// and peers are active, enforces the cross-owner invariants over that state,
// and reclaims rows when their owners terminate.
type Session struct {
	store   storage.Store
	monitor *lease.Monitor
	stats   *stats.Repository
	alloc   alloc.Allocator
}

// New creates a Session from its configuration.
func New(cfg Config) (*Session, error) {
	a := alloc.New()

	store, err := storage.NewStore(cfg.Storage.Name, cfg.Storage.Config, a)
	if err != nil {
		return nil, errors.Wrap(err, "session: failed to create store")
	}

	return &Session{
		store:   store,
		monitor: lease.NewMonitor(),
		stats:   stats.NewRepository(),
		alloc:   a,
	}, nil
}

// NewWithStore creates a Session around an already-built store. Used by
// consumers that construct the store themselves, and by tests.
func NewWithStore(store storage.Store, a alloc.Allocator) *Session {
	return &Session{
		store:   store,
		monitor: lease.NewMonitor(),
		stats:   stats.NewRepository(),
		alloc:   a,
	}
}

// RegisterTorrent creates a row for id owned by the supervisor holding g, and
// subscribes to the supervisor's termination. When the supervisor terminates,
// the torrent row and its transfer counters are reclaimed.
//
// The row is inserted before the subscription is armed; arming an
// already-released Guard delivers expiry immediately, so a supervisor dying
// between the two steps cannot leak the row.
func (s *Session) RegisterTorrent(g *lease.Guard, name string, id bittorrent.TorrentID) error {
	if err := s.store.PutTorrent(id, name, g.ID()); err != nil {
		return err
	}

	tag := fmt.Sprintf("torrent(%d)", id)
	_, err := s.monitor.Arm(g, tag, func() {
		s.store.DeleteTorrent(id)
		s.stats.Remove(id)
		log.Debug("session: reclaimed torrent row", log.Fields{"id": id})
	})
	if err != nil {
		s.store.DeleteTorrent(id)
		return err
	}

	log.Info("session: registered torrent", log.Fields{
		"id":         id,
		"name":       name,
		"supervisor": g.ID(),
	})
	return nil
}

// AddPeer creates a row for the connection owner holding g and subscribes to
// its termination. The same insert-then-arm ordering as RegisterTorrent
// applies.
func (s *Session) AddPeer(g *lease.Guard, addr netaddr.IPPort, t bittorrent.TorrentID, state bittorrent.PeerState) error {
	if err := s.store.PutPeer(g.ID(), addr, t, state); err != nil {
		return err
	}

	id := g.ID()
	_, err := s.monitor.Arm(g, tagPeer, func() {
		s.store.DeletePeer(id)
		log.Debug("session: reclaimed peer row", log.Fields{"peer": id})
	})
	if err != nil {
		s.store.DeletePeer(id)
		return err
	}

	return nil
}

// AcquireCheck attempts to take the global verification token for id.
// It returns false when some torrent is already checking.
func (s *Session) AcquireCheck(id bittorrent.TorrentID) (bool, error) {
	return s.store.AcquireCheck(id)
}

// SetTorrentStatus applies a lifecycle transition to the torrent.
func (s *Session) SetTorrentStatus(id bittorrent.TorrentID, status bittorrent.Status) error {
	return s.store.SetStatus(id, status)
}

// SetInfoHash records the computed fingerprint of the torrent.
func (s *Session) SetInfoHash(id bittorrent.TorrentID, ih bittorrent.InfoHash) error {
	return s.store.SetInfoHash(id, ih)
}

// Torrent returns a snapshot of the torrent row for id.
func (s *Session) Torrent(id bittorrent.TorrentID) (bittorrent.TorrentInfo, error) {
	return s.store.GetTorrent(id)
}

// TorrentByInfoHash returns the torrent with the given known fingerprint.
func (s *Session) TorrentByInfoHash(ih bittorrent.InfoHash) (bittorrent.TorrentInfo, error) {
	return s.store.GetTorrentByInfoHash(ih)
}

// TorrentByName returns the torrent with the given name.
func (s *Session) TorrentByName(name string) (bittorrent.TorrentInfo, error) {
	return s.store.GetTorrentByName(name)
}

// Torrents returns an unordered snapshot of all torrent rows.
func (s *Session) Torrents() []bittorrent.TorrentInfo {
	return s.store.AllTorrents()
}

// MarkSeeding transitions the peer to the seeding state.
func (s *Session) MarkSeeding(peer uuid.UUID) error {
	return s.store.GraduatePeer(peer)
}

// Peer returns a snapshot of the peer row.
func (s *Session) Peer(peer uuid.UUID) (bittorrent.PeerInfo, error) {
	return s.store.GetPeer(peer)
}

// PeersForTorrent returns all peers connected for t.
func (s *Session) PeersForTorrent(t bittorrent.TorrentID) []bittorrent.PeerInfo {
	return s.store.PeersForTorrent(t)
}

// Connected reports whether a connection to the remote endpoint already
// exists for t.
func (s *Session) Connected(addr netaddr.IPPort, t bittorrent.TorrentID) bool {
	return s.store.Connected(addr, t)
}

// ForEachPeer applies fn to every peer connected for t.
func (s *Session) ForEachPeer(t bittorrent.TorrentID, fn func(bittorrent.PeerInfo)) {
	s.store.ForEachPeer(t, fn)
}

// AddPath deduplicates path within t, returning its stable identifier.
func (s *Session) AddPath(path string, t bittorrent.TorrentID) (bittorrent.PathID, error) {
	return s.store.PutPath(path, t)
}

// Path resolves a path identifier within t.
func (s *Session) Path(id bittorrent.PathID, t bittorrent.TorrentID) (string, error) {
	return s.store.GetPath(id, t)
}

// RemovePaths bulk-removes the path entries of a torrent being torn down.
func (s *Session) RemovePaths(t bittorrent.TorrentID) int {
	return s.store.DeletePaths(t)
}

// CountersFor returns the transfer counters of t, creating them on first use.
func (s *Session) CountersFor(t bittorrent.TorrentID) *stats.Counters {
	return s.stats.For(t)
}

// Stop shuts down the monitor and then the store. The order matters: the
// monitor must be fully drained so that no expiry callback can reach a
// stopped store.
func (s *Session) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		var errs []error
		errs = append(errs, s.monitor.Stop().Wait()...)
		errs = append(errs, s.store.Stop().Wait()...)
		c.Done(errs...)
	}()
	return c.Result()
}
