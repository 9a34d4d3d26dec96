package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kestrelbt/kestrel/bittorrent"
	"github.com/kestrelbt/kestrel/storage"
)

type torrentResource struct {
	ID           bittorrent.TorrentID `json:"id"`
	Name         string               `json:"name"`
	InfoHash     string               `json:"info_hash,omitempty"`
	Status       string               `json:"status"`
	SupervisorID string               `json:"supervisor_id"`
	RegisteredAt time.Time            `json:"registered_at"`
}

func torrentToResource(info bittorrent.TorrentInfo) torrentResource {
	r := torrentResource{
		ID:           info.ID,
		Name:         info.Name,
		Status:       info.Status.String(),
		SupervisorID: info.SupervisorID.String(),
		RegisteredAt: info.RegisteredAt,
	}
	if info.InfoHash.Known() {
		r.InfoHash = info.InfoHash.String()
	}
	return r
}

type peerResource struct {
	ID          string               `json:"id"`
	Addr        string               `json:"addr"`
	TorrentID   bittorrent.TorrentID `json:"torrent_id"`
	State       string               `json:"state"`
	ConnectedAt time.Time            `json:"connected_at"`
}

func peerToResource(info bittorrent.PeerInfo) peerResource {
	return peerResource{
		ID:          info.ID.String(),
		Addr:        info.Addr.String(),
		TorrentID:   info.TorrentID,
		State:       info.State.String(),
		ConnectedAt: info.ConnectedAt,
	}
}

type statsResource struct {
	Uploaded   int64 `json:"uploaded"`
	Downloaded int64 `json:"downloaded"`
	Left       int64 `json:"left"`
}

type errorResource struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeError maps registry errors onto status codes: absent rows are 404,
// other client errors are 400, and everything else is a 500.
func writeError(w http.ResponseWriter, err error) error {
	if err == storage.ErrNotFound {
		return writeJSON(w, http.StatusNotFound, errorResource{Error: err.Error()})
	}

	if _, ok := err.(bittorrent.ClientError); ok {
		return writeJSON(w, http.StatusBadRequest, errorResource{Error: err.Error()})
	}

	return writeJSON(w, http.StatusInternalServerError, errorResource{Error: "internal server error"})
}
