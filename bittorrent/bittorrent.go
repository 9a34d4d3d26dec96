// Package bittorrent implements the domain abstractions shared by the
// session registry: torrent and path identifiers, info hashes, and the
// snapshot records handed out to consumers of the registry.
package bittorrent

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"inet.af/netaddr"

	"github.com/kestrelbt/kestrel/pkg/log"
)

// TorrentID identifies one unit of shared content for the lifetime of the
// process. IDs are allocated externally and are never reused while a row for
// them is live.
type TorrentID uint64

// PathID identifies a deduplicated path string within a torrent. The numeric
// value is drawn from a single allocator domain shared by all torrents; only
// the (PathID, TorrentID) pair is unique.
type PathID uint64

// InfoHash represents a torrent's content fingerprint.
//
// The zero value is the "unknown" fingerprint of a torrent whose metadata has
// not been computed yet.
type InfoHash [20]byte

// UnknownInfoHash is the fingerprint of a torrent before its metadata is
// known.
var UnknownInfoHash = InfoHash{}

// InfoHashFromBytes creates an InfoHash from a byte slice.
//
// It panics if b is not 20 bytes long.
func InfoHashFromBytes(b []byte) InfoHash {
	if len(b) != 20 {
		panic("infohash must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], b)
	return InfoHash(buf)
}

// InfoHashFromString creates an InfoHash from a string.
//
// It panics if s is not 20 bytes long.
func InfoHashFromString(s string) InfoHash {
	if len(s) != 20 {
		panic("infohash must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], s)
	return InfoHash(buf)
}

// InfoHashFromHexString creates an InfoHash from a hex string.
//
// It panics if s is not 40 bytes long.
func InfoHashFromHexString(s string) InfoHash {
	if len(s) != 40 {
		panic("infohash must be 40 bytes")
	}

	var buf [20]byte
	hex.Decode(buf[:], []byte(s))
	return InfoHash(buf)
}

// Known reports whether the fingerprint has been computed.
func (i InfoHash) Known() bool { return i != UnknownInfoHash }

// String implements fmt.Stringer, returning the base16 encoded InfoHash.
func (i InfoHash) String() string {
	return fmt.Sprintf("%x", i[:])
}

// RawString returns a 20-byte string of the raw bytes of the InfoHash.
func (i InfoHash) RawString() string {
	return string(i[:])
}

// TorrentInfo is a point-in-time snapshot of one torrent row.
type TorrentInfo struct {
	ID           TorrentID
	Name         string
	InfoHash     InfoHash
	Status       Status
	SupervisorID uuid.UUID
	RegisteredAt time.Time
}

// LogFields renders the snapshot as a set of log fields.
func (t TorrentInfo) LogFields() log.Fields {
	return log.Fields{
		"id":         t.ID,
		"name":       t.Name,
		"infoHash":   t.InfoHash,
		"status":     t.Status,
		"supervisor": t.SupervisorID,
	}
}

// PeerInfo is a point-in-time snapshot of one connected-peer row.
type PeerInfo struct {
	ID          uuid.UUID
	Addr        netaddr.IPPort
	TorrentID   TorrentID
	State       PeerState
	ConnectedAt time.Time
}

// LogFields renders the snapshot as a set of log fields.
func (p PeerInfo) LogFields() log.Fields {
	return log.Fields{
		"id":        p.ID,
		"addr":      p.Addr,
		"torrentID": p.TorrentID,
		"state":     p.State,
	}
}

// ClientError represents an error that should be exposed to callers of the
// inspection API.
type ClientError string

// Error implements the error interface for ClientError.
func (c ClientError) Error() string { return string(c) }
