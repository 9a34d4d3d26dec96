package bittorrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoHashKnown(t *testing.T) {
	require.False(t, UnknownInfoHash.Known())
	require.True(t, InfoHashFromString("00000000000000000001").Known())
}

func TestInfoHashRoundTrip(t *testing.T) {
	ih := InfoHashFromString("12345678901234567890")
	require.Equal(t, ih, InfoHashFromBytes([]byte(ih.RawString())))
	require.Equal(t, ih, InfoHashFromHexString(ih.String()))
}

func TestInfoHashFromStringPanics(t *testing.T) {
	require.Panics(t, func() { InfoHashFromString("too short") })
}
