// Package stats implements the per-torrent transfer accumulators. Counters
// are independent of the registry tables; they only share the torrent
// identity.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrelbt/kestrel/bittorrent"
)

func init() {
	prometheus.MustRegister(promUploadedBytes)
	prometheus.MustRegister(promDownloadedBytes)
}

var promUploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "kestrel_transfer_uploaded_bytes_total",
	Help: "The total number of bytes uploaded across all torrents",
})

var promDownloadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "kestrel_transfer_downloaded_bytes_total",
	Help: "The total number of bytes downloaded across all torrents",
})

// Counters accumulates the transfer totals of one torrent. All methods are
// safe for concurrent use; the three fields carry no cross-field invariant.
type Counters struct {
	uploaded   int64
	downloaded int64
	left       int64
}

// AddUploaded adds delta to the uploaded byte count.
func (c *Counters) AddUploaded(delta int64) {
	atomic.AddInt64(&c.uploaded, delta)
	if delta > 0 {
		promUploadedBytes.Add(float64(delta))
	}
}

// AddDownloaded adds delta to the downloaded byte count.
func (c *Counters) AddDownloaded(delta int64) {
	atomic.AddInt64(&c.downloaded, delta)
	if delta > 0 {
		promDownloadedBytes.Add(float64(delta))
	}
}

// AdjustLeft adds delta to the remaining byte count. Callers adjust it in
// both directions as pieces complete or fail verification.
func (c *Counters) AdjustLeft(delta int64) {
	atomic.AddInt64(&c.left, delta)
}

// Snapshot returns the current uploaded, downloaded, and left totals. The
// three loads are individually atomic, not a consistent cut; the counters
// carry no invariant that would require one.
func (c *Counters) Snapshot() (uploaded, downloaded, left int64) {
	return atomic.LoadInt64(&c.uploaded),
		atomic.LoadInt64(&c.downloaded),
		atomic.LoadInt64(&c.left)
}

// Repository hands out one Counters instance per torrent id.
type Repository struct {
	m        sync.RWMutex
	counters map[bittorrent.TorrentID]*Counters
}

// NewRepository allocates an empty Repository.
func NewRepository() *Repository {
	return &Repository{counters: make(map[bittorrent.TorrentID]*Counters)}
}

// For returns the Counters for t, creating them on first use.
func (r *Repository) For(t bittorrent.TorrentID) *Counters {
	r.m.RLock()
	c, ok := r.counters[t]
	r.m.RUnlock()
	if ok {
		return c
	}

	r.m.Lock()
	c, ok = r.counters[t]
	if !ok {
		c = &Counters{}
		r.counters[t] = c
	}
	r.m.Unlock()
	return c
}

// Remove drops the Counters for t. Outstanding references stay usable; they
// are simply no longer reachable through the Repository.
func (r *Repository) Remove(t bittorrent.TorrentID) {
	r.m.Lock()
	delete(r.counters, t)
	r.m.Unlock()
}

// Len returns the number of torrents with live Counters.
func (r *Repository) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.counters)
}
