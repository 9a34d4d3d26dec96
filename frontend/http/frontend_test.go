package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/lease"
	"github.com/kestrelbt/kestrel/pkg/alloc"
	"github.com/kestrelbt/kestrel/session"
	"github.com/kestrelbt/kestrel/storage/memory"
)

func createFrontend(t *testing.T) (*Frontend, *session.Session) {
	t.Helper()

	a := alloc.New()
	store, err := memory.New(memory.Config{}, a)
	require.Nil(t, err)

	s := session.NewWithStore(store, a)
	t.Cleanup(func() { s.Stop().Wait() })

	return NewFrontend(s, Config{}), s
}

func TestGetTorrent(t *testing.T) {
	fe, s := createFrontend(t)
	srv := httptest.NewServer(fe.handler())
	defer srv.Close()

	sup := lease.NewGuard()
	defer sup.Release()
	require.Nil(t, s.RegisterTorrent(sup, "a.torrent", 1))

	resp, err := http.Get(srv.URL + "/torrents/1")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr torrentResource
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&tr))
	require.Equal(t, bittorrent.TorrentID(1), tr.ID)
	require.Equal(t, "a.torrent", tr.Name)
	require.Equal(t, "awaiting", tr.Status)
	require.Empty(t, tr.InfoHash)
}

func TestGetTorrentNotFound(t *testing.T) {
	fe, _ := createFrontend(t)
	srv := httptest.NewServer(fe.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/torrents/42")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTorrentBadID(t *testing.T) {
	fe, _ := createFrontend(t)
	srv := httptest.NewServer(fe.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/torrents/notanumber")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListPeersAndStats(t *testing.T) {
	fe, s := createFrontend(t)
	srv := httptest.NewServer(fe.handler())
	defer srv.Close()

	sup := lease.NewGuard()
	defer sup.Release()
	require.Nil(t, s.RegisterTorrent(sup, "a.torrent", 7))

	conn := lease.NewGuard()
	defer conn.Release()
	require.Nil(t, s.AddPeer(conn, netaddr.MustParseIPPort("1.2.3.4:6881"), 7, bittorrent.Leeching))

	s.CountersFor(7).AddUploaded(150)

	resp, err := http.Get(srv.URL + "/torrents/7/peers")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var peers []peerResource
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&peers))
	require.Equal(t, 1, len(peers))
	require.Equal(t, "1.2.3.4:6881", peers[0].Addr)
	require.Equal(t, "leeching", peers[0].State)

	resp2, err := http.Get(srv.URL + "/torrents/7/stats")
	require.Nil(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var st statsResource
	require.Nil(t, json.NewDecoder(resp2.Body).Decode(&st))
	require.Equal(t, int64(150), st.Uploaded)
}
