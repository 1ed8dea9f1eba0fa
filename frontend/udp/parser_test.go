package udp

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

var optionalParamsTable = []struct {
	data   []byte
	values map[string]string
	err    error
}{
	{[]byte{0x2, 0x5, '/', '?', 'a', '=', 'b'}, map[string]string{"a": "b"}, nil},
	{[]byte{0x2, 0x0}, map[string]string{}, nil},
	{[]byte{0x2, 0x1}, nil, errMalformedPacket},
	{[]byte{0x2}, nil, errMalformedPacket},
	{[]byte{0x2, 0x8, '/', 'c', '/', 'd', '?', 'a', '=', 'b'}, map[string]string{"a": "b"}, nil},
	{[]byte{0x2, 0x2, '/', '?', 0x2, 0x3, 'a', '=', 'b'}, map[string]string{"a": "b"}, nil},
}

func TestParseOptionalParameters(t *testing.T) {
	for _, tc := range optionalParamsTable {
		params, err := parseOptionalParameters(tc.data)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err)
			continue
		}
		require.NoError(t, err)
		for key, want := range tc.values {
			got, ok := params.String(key)
			assert.True(t, ok)
			assert.Equal(t, want, got)
		}
	}
}

func announceBody(ih, peerID [20]byte, downloaded, left, uploaded uint64, event uint32, numWant uint32, port uint16) []byte {
	b := make([]byte, 82)
	copy(b[0:20], ih[:])
	copy(b[20:40], peerID[:])
	binary.BigEndian.PutUint64(b[40:48], downloaded)
	binary.BigEndian.PutUint64(b[48:56], left)
	binary.BigEndian.PutUint64(b[56:64], uploaded)
	binary.BigEndian.PutUint32(b[64:68], event)
	// bytes 68:72 (ip), 72:76 (key) intentionally left zero
	binary.BigEndian.PutUint32(b[76:80], numWant)
	binary.BigEndian.PutUint16(b[80:82], port)
	return b
}

func TestParseAnnounceHappyPath(t *testing.T) {
	var ih, pid [20]byte
	for i := range ih {
		ih[i] = byte(i)
	}
	for i := range pid {
		pid[i] = byte(0xAA)
	}
	body := announceBody(ih, pid, 10, 20, 30, 0, 50, 6881)

	req, err := parseAnnounce(body, net.ParseIP("203.0.113.5"))
	require.NoError(t, err)
	assert.Equal(t, bittorrent.InfoHashFromBytes(ih[:]), req.InfoHash)
	assert.EqualValues(t, 6881, req.Peer.Port)
	assert.EqualValues(t, 50, req.NumWant)
	assert.Equal(t, "203.0.113.5", req.Peer.IP.IP.String())
}

func TestParseAnnounceRejectsShortPacket(t *testing.T) {
	_, err := parseAnnounce(make([]byte, 10), net.ParseIP("203.0.113.5"))
	assert.ErrorIs(t, err, errMalformedPacket)
}

func TestParseAnnounceRejectsNilIP(t *testing.T) {
	var ih, pid [20]byte
	body := announceBody(ih, pid, 0, 0, 0, 0, 0, 6881)
	_, err := parseAnnounce(body, nil)
	assert.ErrorIs(t, err, errMalformedIP)
}

func TestParseScrapeHappyPath(t *testing.T) {
	var ih1, ih2 [20]byte
	ih2[0] = 1
	body := append(append([]byte{}, ih1[:]...), ih2[:]...)

	req, err := parseScrape(body)
	require.NoError(t, err)
	require.Len(t, req.InfoHashes, 2)
	assert.Equal(t, bittorrent.InfoHashFromBytes(ih2[:]), req.InfoHashes[1])
}

func TestParseScrapeRejectsMisalignedLength(t *testing.T) {
	_, err := parseScrape(make([]byte, 25))
	assert.ErrorIs(t, err, errMalformedPacket)
}
