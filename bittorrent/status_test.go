package bittorrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStatus(t *testing.T) {
	var table = []struct {
		data        string
		expected    Status
		expectedErr error
	}{
		{"awaiting", Awaiting, nil},
		{"AWAITING", Awaiting, nil},
		{"checking", Checking, nil},
		{"started", Started, nil},
		{"stopped", Stopped, nil},
		{"duplicate", Duplicate, nil},
		{"notAStatus", Awaiting, ErrUnknownStatus},
	}

	for _, tt := range table {
		got, err := NewStatus(tt.data)
		require.Equal(t, err, tt.expectedErr, "errors should equal the expected value")
		require.Equal(t, got, tt.expected, "statuses should equal the expected value")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{Awaiting, Checking, Started, Stopped, Duplicate} {
		got, err := NewStatus(s.String())
		require.Nil(t, err)
		require.Equal(t, s, got)
	}
}
