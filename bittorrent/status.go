package bittorrent

import (
	"errors"
	"strings"
)

// ErrUnknownStatus is returned when NewStatus fails to parse a status name.
var ErrUnknownStatus = errors.New("unknown torrent status")

// Status represents the lifecycle phase of a tracked torrent.
type Status uint8

const (
	// Awaiting is the initial phase of a torrent that has been registered
	// but not yet verified against its on-disk data.
	Awaiting Status = iota

	// Checking is the phase during which a torrent's on-disk data is being
	// verified. At most one torrent is in this phase at any time.
	Checking

	// Started is the phase of a torrent actively transferring data.
	Started

	// Stopped is the phase of a torrent that is registered but not
	// transferring.
	Stopped

	// Duplicate is reserved for rejecting a second registration of an
	// already-known torrent. No transition into it is performed today.
	Duplicate
)

var (
	statusToString = make(map[Status]string)
	stringToStatus = make(map[string]Status)
)

func init() {
	statusToString[Awaiting] = "awaiting"
	statusToString[Checking] = "checking"
	statusToString[Started] = "started"
	statusToString[Stopped] = "stopped"
	statusToString[Duplicate] = "duplicate"

	for k, v := range statusToString {
		stringToStatus[v] = k
	}
}

// NewStatus returns the proper Status given a string.
func NewStatus(statusStr string) (Status, error) {
	if s, ok := stringToStatus[strings.ToLower(statusStr)]; ok {
		return s, nil
	}

	return Awaiting, ErrUnknownStatus
}

// String implements Stringer for a Status.
func (s Status) String() string {
	if name, ok := statusToString[s]; ok {
		return name
	}

	panic("bittorrent: status has no associated name")
}
