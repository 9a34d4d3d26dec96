// Package memory implements the registry Store backed by sharded in-memory
// maps.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	yaml "gopkg.in/yaml.v2"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/pkg/alloc"
	"github.com/kestrelbt/kestrel/pkg/stop"
	"github.com/kestrelbt/kestrel/storage"
)

func init() {
	prometheus.MustRegister(promTorrentsCount)
	prometheus.MustRegister(promPeersCount)
	prometheus.MustRegister(promPathsCount)

	storage.RegisterDriver("memory", driver{})
}

var promTorrentsCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "kestrel_registry_torrents_count",
	Help: "The number of torrents currently registered",
})

var promPeersCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "kestrel_registry_peers_count",
	Help: "The number of peers currently connected",
})

var promPathsCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "kestrel_registry_paths_count",
	Help: "The number of path entries tracked",
})

type driver struct{}

func (d driver) NewStore(icfg interface{}, a alloc.Allocator) (storage.Store, error) {
	// The config generically deserialized from YAML needs to be converted
	// into the specific config for this store.
	bytes, err := yaml.Marshal(icfg)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(bytes, &cfg)
	if err != nil {
		return nil, err
	}

	return New(cfg, a)
}

// Config holds the configuration of a memory Store.
type Config struct {
	TorrentShardCount int `yaml:"torrent_shard_count"`
	PeerShardCount    int `yaml:"peer_shard_count"`
}

// PathDomain is the allocator domain path identifiers are drawn from. It is
// shared by all torrents; dedup is scoped by the composite key, not by the
// numeric value.
const PathDomain = "paths"

// New creates a new Store backed by memory.
func New(cfg Config, a alloc.Allocator) (storage.Store, error) {
	torrentShardCount := 1
	if cfg.TorrentShardCount > 0 {
		torrentShardCount = cfg.TorrentShardCount
	}
	peerShardCount := 1
	if cfg.PeerShardCount > 0 {
		peerShardCount = cfg.PeerShardCount
	}

	s := &store{
		torrents: make([]*torrentShard, torrentShardCount),
		peers:    make([]*peerShard, peerShardCount),
		paths: pathTable{
			ids:     make(map[pathKey]bittorrent.PathID),
			strings: make(map[pathRef]string),
		},
		alloc:   a,
		closing: make(chan struct{}),
	}

	for i := range s.torrents {
		s.torrents[i] = &torrentShard{rows: make(map[bittorrent.TorrentID]*torrentRow)}
	}
	for i := range s.peers {
		s.peers[i] = &peerShard{rows: make(map[uuid.UUID]*peerRow)}
	}

	return s, nil
}

type store struct {
	torrents []*torrentShard
	peers    []*peerShard
	paths    pathTable
	alloc    alloc.Allocator

	// check is the global verification token. holder is only meaningful
	// while held is true.
	check struct {
		sync.Mutex
		held   bool
		holder bittorrent.TorrentID
	}

	closing chan struct{}
}

var _ storage.Store = &store{}

func timeFromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns)
}

func (s *store) panicIfClosed() {
	select {
	case <-s.closing:
		panic("attempted to interact with stopped memory store")
	default:
	}
}

func (s *store) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		close(s.closing)

		// Explicitly deallocate our storage.
		for i := range s.torrents {
			s.torrents[i] = &torrentShard{rows: make(map[bittorrent.TorrentID]*torrentRow)}
		}
		for i := range s.peers {
			s.peers[i] = &peerShard{rows: make(map[uuid.UUID]*peerRow)}
		}
		s.paths = pathTable{
			ids:     make(map[pathKey]bittorrent.PathID),
			strings: make(map[pathRef]string),
		}

		c.Done()
	}()

	return c.Result()
}
