package bittorrent

import (
	"errors"
	"strings"
)

// ErrUnknownPeerState is returned when NewPeerState fails to parse a state
// name.
var ErrUnknownPeerState = errors.New("unknown peer state")

// PeerState represents the transfer role of a connected peer.
//
// The only transition exposed by the registry is Leeching to Seeding; there is
// no way back.
type PeerState uint8

const (
	// Leeching is the state of a peer that does not yet have the complete
	// content.
	Leeching PeerState = iota

	// Seeding is the state of a peer that has the complete content.
	Seeding
)

var (
	peerStateToString = make(map[PeerState]string)
	stringToPeerState = make(map[string]PeerState)
)

func init() {
	peerStateToString[Leeching] = "leeching"
	peerStateToString[Seeding] = "seeding"

	for k, v := range peerStateToString {
		stringToPeerState[v] = k
	}
}

// NewPeerState returns the proper PeerState given a string.
func NewPeerState(stateStr string) (PeerState, error) {
	if s, ok := stringToPeerState[strings.ToLower(stateStr)]; ok {
		return s, nil
	}

	return Leeching, ErrUnknownPeerState
}

// String implements Stringer for a PeerState.
func (s PeerState) String() string {
	if name, ok := peerStateToString[s]; ok {
		return name
	}

	panic("bittorrent: peer state has no associated name")
}
