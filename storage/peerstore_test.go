package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/clock"
)

func testStore(t *testing.T) (*PeerStore, *clock.Clock) {
	t.Helper()
	c := clock.New()
	t.Cleanup(c.Stop)
	ps := New(Config{BucketCount: 3, BucketTimeout: time.Second}, c)
	return ps, c
}

func peerAt(ip string, port uint16) bittorrent.Peer {
	return bittorrent.Peer{
		ID:   bittorrent.PeerIDFromBytes([]byte("-SW0001-aaaaaaaaaaaa")[:20]),
		Port: port,
		IP:   bittorrent.IP{IP: mustParseIP(ip), AddressFamily: bittorrent.IPv4},
	}
}

func mustParseIP(s string) []byte {
	ip := []byte{0, 0, 0, 0}
	copy(ip, parseV4(s))
	return ip
}

// parseV4 avoids pulling in net.ParseIP just for four octets in a test.
func parseV4(s string) []byte {
	var out [4]byte
	var part, idx int
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out[idx] = byte(part)
			idx++
			part = 0
			continue
		}
		part = part*10 + int(s[i]-'0')
	}
	out[idx] = byte(part)
	return out[:]
}

var ih1 = bittorrent.InfoHashFromBytes([]byte("aaaaaaaaaaaaaaaaaaaa"))

func TestAddPeerAndScrape(t *testing.T) {
	ps, _ := testStore(t)

	ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: peerAt("1.2.3.4", 6881), Left: 0})
	ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: peerAt("1.2.3.5", 6882), Left: 100})

	scrape, ok := ps.Scrape(ih1)
	require.True(t, ok)
	assert.EqualValues(t, 1, scrape.Complete)
	assert.EqualValues(t, 1, scrape.Incomplete)
}

func TestStoppedRemovesPeerAndTorrent(t *testing.T) {
	ps, _ := testStore(t)

	ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: peerAt("1.2.3.4", 6881), Left: 0})
	assert.EqualValues(t, 1, ps.NumTorrents())

	ps.AddPeer(bittorrent.AnnounceRequest{
		InfoHash: ih1, Peer: peerAt("1.2.3.4", 6881), Event: bittorrent.Stopped,
	})

	scrape, _ := ps.Scrape(ih1)
	assert.Zero(t, scrape.Complete)
	assert.Zero(t, scrape.Incomplete)
	assert.EqualValues(t, 0, ps.NumTorrents())
}

func TestReturnPeersExcludesRequester(t *testing.T) {
	ps, _ := testStore(t)

	a := peerAt("1.2.3.4", 6881)
	b := peerAt("1.2.3.5", 6882)
	ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: a, Left: 100})
	ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: b, Left: 100})

	peers := ps.ReturnPeers(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: a, Left: 100}, 50)
	require.Len(t, peers, 1)
	assert.True(t, peers[0].EqualEndpoint(b))
}

func TestCompletedCountsOncePerPeer(t *testing.T) {
	ps, _ := testStore(t)
	p := peerAt("1.2.3.4", 6881)

	r1 := ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: p, Left: 1, Event: bittorrent.Completed})
	r2 := ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: p, Left: 0, Event: bittorrent.Completed})

	assert.EqualValues(t, 1, r1.Completed)
	assert.EqualValues(t, 1, r2.Completed)
}

func TestBucketRingExpiresStalePeers(t *testing.T) {
	ps, c := testStore(t)
	ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih1, Peer: peerAt("1.2.3.4", 6881), Left: 0})

	time.Sleep(4 * time.Second) // geometry: 3 buckets * 1s = fully expired
	c.Tick()
	ps.ExpireSweep()

	scrape, _ := ps.Scrape(ih1)
	assert.Zero(t, scrape.Complete)
	assert.EqualValues(t, 0, ps.NumTorrents())
}

func TestFullScrapeCursorCoversEverything(t *testing.T) {
	ps, _ := testStore(t)
	var hashes []bittorrent.InfoHash
	for i := 0; i < 10; i++ {
		raw := make([]byte, 20)
		raw[0] = byte(i * 25) // spread across shards
		raw[1] = byte(i)
		ih := bittorrent.InfoHashFromBytes(raw)
		hashes = append(hashes, ih)
		ps.AddPeer(bittorrent.AnnounceRequest{InfoHash: ih, Peer: peerAt("1.2.3.4", uint16(7000+i)), Left: 0})
	}

	seen := make(map[bittorrent.InfoHash]bool)
	var cur *Cursor
	for {
		var entries []ScrapeEntry
		entries, cur = ps.FullScrape(cur, 3)
		for _, e := range entries {
			seen[e.InfoHash] = true
		}
		if cur == nil {
			break
		}
	}

	for _, ih := range hashes {
		assert.True(t, seen[ih], "missing infohash from full scrape")
	}
}

func TestStopWaitsForGCLoop(t *testing.T) {
	c := clock.New()
	defer c.Stop()
	ps := New(Config{GCInterval: 10 * time.Millisecond}, c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ps.Stop(ctx))
}
