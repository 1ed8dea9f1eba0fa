package bittorrent

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	var table = []struct {
		data     string
		expected Event
		wantErr  bool
	}{
		{"", None, false},
		{"NONE", None, false},
		{"none", None, false},
		{"started", Started, false},
		{"stopped", Stopped, false},
		{"completed", Completed, false},
		{"notAnEvent", None, true},
	}

	for _, tt := range table {
		got, err := NewEvent(tt.data)
		if tt.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestNewClientID(t *testing.T) {
	cid := NewClientID(PeerIDFromBytes([]byte("-AZ3042-6wfG2wk6wWLc")))
	assert.Equal(t, "AZ3042", string(cid[:]))
}

func TestPeerEqual(t *testing.T) {
	a := Peer{ID: PeerIDFromBytes([]byte("aaaaaaaaaaaaaaaaaaaa")), IP: IP{IP: net.ParseIP("1.2.3.4")}, Port: 6881}
	b := a
	assert.True(t, a.Equal(b))

	b.Port = 6882
	assert.False(t, a.Equal(b))
	assert.False(t, a.EqualEndpoint(b))
}

func TestInfoHashFromBytesPanics(t *testing.T) {
	assert.Panics(t, func() { InfoHashFromBytes([]byte("tooshort")) })
}
