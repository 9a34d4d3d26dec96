// Package http implements a read-only JSON API for inspecting the session
// registry: which torrents are tracked, which peers are connected, and what
// the transfer counters hold.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/pkg/log"
	"github.com/kestrelbt/kestrel/pkg/stop"
	"github.com/kestrelbt/kestrel/session"
)

func init() {
	prometheus.MustRegister(promResponseDurationMilliseconds)
}

var promResponseDurationMilliseconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kestrel_http_response_duration_milliseconds",
		Help:    "The duration of time it takes to write a response to an API request",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	},
	[]string{"action", "error"},
)

// recordResponseDuration records the duration of time to respond to a request
// in milliseconds.
func recordResponseDuration(action string, err error, duration time.Duration) {
	var errString string
	if err != nil {
		errString = err.Error()
	}

	promResponseDurationMilliseconds.
		WithLabelValues(action, errString).
		Observe(float64(duration.Nanoseconds()) / float64(time.Millisecond))
}

// Config represents all of the configurable options for the inspection API.
type Config struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Frontend serves the inspection API for one Session.
type Frontend struct {
	srv     *http.Server
	session *session.Session

	Config
}

// NewFrontend allocates a new instance of a Frontend.
func NewFrontend(s *session.Session, cfg Config) *Frontend {
	return &Frontend{
		session: s,
		Config:  cfg,
	}
}

func (f *Frontend) handler() http.Handler {
	router := httprouter.New()
	router.GET("/torrents", f.listTorrentsRoute)
	router.GET("/torrents/:id", f.getTorrentRoute)
	router.GET("/torrents/:id/peers", f.listPeersRoute)
	router.GET("/torrents/:id/stats", f.getStatsRoute)
	return router
}

// ListenAndServe listens on the TCP network address f.Addr and blocks serving
// requests until Stop is called or an error is returned.
func (f *Frontend) ListenAndServe() error {
	f.srv = &http.Server{
		Addr:         f.Addr,
		Handler:      f.handler(),
		ReadTimeout:  f.ReadTimeout,
		WriteTimeout: f.WriteTimeout,
	}

	if err := f.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop provides a thread-safe way to shutdown a currently running Frontend.
func (f *Frontend) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Done(f.srv.Shutdown(ctx))
	}()

	return c.Result()
}

func parseTorrentID(ps httprouter.Params) (bittorrent.TorrentID, error) {
	raw := ps.ByName("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, bittorrent.ClientError("invalid torrent id: " + raw)
	}
	return bittorrent.TorrentID(id), nil
}

func (f *Frontend) listTorrentsRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var err error
	start := time.Now()
	defer func() { recordResponseDuration("list_torrents", err, time.Since(start)) }()

	infos := f.session.Torrents()
	resp := make([]torrentResource, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, torrentToResource(info))
	}

	err = writeJSON(w, http.StatusOK, resp)
	if err != nil {
		log.Error("http: failed to write response", log.Err(err))
	}
}

func (f *Frontend) getTorrentRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	start := time.Now()
	defer func() { recordResponseDuration("get_torrent", err, time.Since(start)) }()

	id, err := parseTorrentID(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := f.session.Torrent(id)
	if err != nil {
		writeError(w, err)
		return
	}

	err = writeJSON(w, http.StatusOK, torrentToResource(info))
	if err != nil {
		log.Error("http: failed to write response", log.Err(err))
	}
}

func (f *Frontend) listPeersRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	start := time.Now()
	defer func() { recordResponseDuration("list_peers", err, time.Since(start)) }()

	id, err := parseTorrentID(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	infos := f.session.PeersForTorrent(id)
	resp := make([]peerResource, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, peerToResource(info))
	}

	err = writeJSON(w, http.StatusOK, resp)
	if err != nil {
		log.Error("http: failed to write response", log.Err(err))
	}
}

func (f *Frontend) getStatsRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	start := time.Now()
	defer func() { recordResponseDuration("get_stats", err, time.Since(start)) }()

	id, err := parseTorrentID(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	// Torrent existence gates the counters: counters are created lazily
	// and a bare stats request must not fabricate an entry for an unknown
	// torrent.
	if _, err = f.session.Torrent(id); err != nil {
		writeError(w, err)
		return
	}

	uploaded, downloaded, left := f.session.CountersFor(id).Snapshot()
	err = writeJSON(w, http.StatusOK, statsResource{
		Uploaded:   uploaded,
		Downloaded: downloaded,
		Left:       left,
	})
	if err != nil {
		log.Error("http: failed to write response", log.Err(err))
	}
}
