package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmkeep/swarmkeep/access"
	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/clock"
	"github.com/swarmkeep/swarmkeep/stats"
	"github.com/swarmkeep/swarmkeep/storage"
)

func newTestLogic(t *testing.T) *Logic {
	t.Helper()
	c := clock.New()
	t.Cleanup(c.Stop)
	store := storage.New(storage.Config{}, c)

	return New(
		Config{AnnounceInterval: 30 * time.Minute, MinAnnounceInterval: 5 * time.Minute},
		store,
		stats.New(false),
		access.NewList(access.Disabled),
		access.NewIPPermissions(),
		nil,
		&bittorrent.RequestSanitizer{MaxNumWant: 200, DefaultNumWant: 50, MaxScrapeInfoHashes: 64},
	)
}

var ih = bittorrent.InfoHashFromBytes([]byte("bbbbbbbbbbbbbbbbbbbb"))

func announceReq(port uint16, left uint64, event bittorrent.Event) *bittorrent.AnnounceRequest {
	return &bittorrent.AnnounceRequest{
		InfoHash:        ih,
		Event:           event,
		NumWantProvided: false,
		Compact:         true,
		Left:            left,
		Peer: bittorrent.Peer{
			ID:   bittorrent.PeerIDFromBytes([]byte("-SW0001-bbbbbbbbbbbb")[:20]),
			Port: port,
			IP:   bittorrent.IP{IP: []byte{127, 0, 0, 1}, AddressFamily: bittorrent.IPv4},
		},
	}
}

func TestHandleAnnounceUnapprovedReturnsEmptyPeerList(t *testing.T) {
	l := newTestLogic(t)
	l.Access = access.NewList(access.Whitelist)

	resp, err := l.HandleAnnounce(context.Background(), announceReq(6881, 0, bittorrent.None))
	require.NoError(t, err)
	assert.Empty(t, resp.IPv4Peers)
	assert.Empty(t, resp.IPv6Peers)
	assert.EqualValues(t, 0, resp.Complete)
	assert.EqualValues(t, 0, resp.Incomplete)
}

func TestHandleAnnounceAppliesDefaultNumWant(t *testing.T) {
	l := newTestLogic(t)
	req := announceReq(6881, 0, bittorrent.None)
	_, err := l.HandleAnnounce(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 50, req.NumWant)
}

func TestHandleAnnounceReturnsOtherPeers(t *testing.T) {
	l := newTestLogic(t)
	_, err := l.HandleAnnounce(context.Background(), announceReq(6881, 100, bittorrent.None))
	require.NoError(t, err)

	resp, err := l.HandleAnnounce(context.Background(), announceReq(6882, 0, bittorrent.None))
	require.NoError(t, err)
	assert.Len(t, resp.IPv4Peers, 1)
	assert.EqualValues(t, 1, resp.Complete)
}

func TestHandleScrapeReturnsCounts(t *testing.T) {
	l := newTestLogic(t)
	_, err := l.HandleAnnounce(context.Background(), announceReq(6881, 0, bittorrent.None))
	require.NoError(t, err)

	resp, err := l.HandleScrape(context.Background(), &bittorrent.ScrapeRequest{InfoHashes: []bittorrent.InfoHash{ih}})
	require.NoError(t, err)
	require.Len(t, resp.Files, 1)
	assert.EqualValues(t, 1, resp.Files[0].Complete)
}
