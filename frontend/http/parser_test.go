package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnounceRequiresInfoHash(t *testing.T) {
	req := &request{RawQuery: "peer_id=" + string(bytesRepeat(0x01, 20)) + "&port=1&left=0", RemoteAddr: fakeAddr("1.2.3.4:1")}
	_, err := parseAnnounce(req, false, false)
	assert.Error(t, err)
}

func TestParseAnnounceHappyPath(t *testing.T) {
	ih := string(bytesRepeat(0xAB, 20))
	pid := string(bytesRepeat(0x01, 20))
	raw := "info_hash=" + ih + "&peer_id=" + pid + "&port=6881&left=0&compact=1"
	req := &request{RawQuery: raw, RemoteAddr: fakeAddr("1.2.3.4:1")}

	ar, err := parseAnnounce(req, false, false)
	require.NoError(t, err)
	assert.EqualValues(t, 6881, ar.Peer.Port)
	assert.True(t, ar.Compact)
	assert.Equal(t, "1.2.3.4", ar.Peer.IP.IP.String())
}

func TestParseScrapeRequiresInfoHash(t *testing.T) {
	req := &request{RawQuery: ""}
	_, err := parseScrape(req)
	assert.Error(t, err)
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
