// Package service orchestrates access control, the peer store, stats, and
// live-sync behind the two request shapes the frontends know about:
// announce and scrape. It replaces the teacher's generic, pluggable
// middleware hook chain (middleware.Hook / middleware.Logic) with a single
// concrete type, since the spec names exactly one fixed set of checks
// (infohash allow/deny list, then storage) rather than an extensible chain.
package service

import (
	"context"
	"time"

	"github.com/swarmkeep/swarmkeep/access"
	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/livesync"
	"github.com/swarmkeep/swarmkeep/pkg/log"
	"github.com/swarmkeep/swarmkeep/stats"
	"github.com/swarmkeep/swarmkeep/storage"
)

// Config carries the announce interval pair the tracker advertises to
// clients (spec §4.C/§6).
type Config struct {
	AnnounceInterval    time.Duration
	MinAnnounceInterval time.Duration
}

// Logic is the concrete implementation both the HTTP and UDP frontends call
// into. It holds no per-request state; every field is safe for concurrent
// use by many goroutines.
type Logic struct {
	cfg Config

	Store     *storage.PeerStore
	Stats     *stats.Stats
	Access    *access.List
	Perms     *access.IPPermissions
	Sync      *livesync.Syncer // nil if live-sync is disabled
	Sanitizer *bittorrent.RequestSanitizer
}

// New builds a Logic from its component parts. Sync may be nil.
func New(cfg Config, store *storage.PeerStore, st *stats.Stats, al *access.List, perms *access.IPPermissions, sync *livesync.Syncer, sanitizer *bittorrent.RequestSanitizer) *Logic {
	return &Logic{
		cfg:       cfg,
		Store:     store,
		Stats:     st,
		Access:    al,
		Perms:     perms,
		Sync:      sync,
		Sanitizer: sanitizer,
	}
}

// HandleAnnounce runs a sanitized announce through the access list, the
// peer store, stats, and (if enabled) live-sync fan-out, and builds the
// response the frontend should encode back to the client.
func (l *Logic) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest) (bittorrent.AnnounceResponse, error) {
	start := time.Now()
	defer func() { l.Stats.RecordAnnounceLatency(time.Since(start)) }()

	if err := l.Sanitizer.SanitizeAnnounce(req); err != nil {
		l.Stats.RecordEvent(stats.BadRequest)
		return bittorrent.AnnounceResponse{}, err
	}
	if !l.Access.Allowed(req.InfoHash) {
		l.Stats.RecordEvent(stats.Unapproved)
		log.Debug("service: announce for unapproved infohash, returning empty peer list", log.Fields{"infohash": req.InfoHash})
		return bittorrent.AnnounceResponse{
			Compact:     req.Compact,
			Interval:    l.cfg.AnnounceInterval,
			MinInterval: l.cfg.MinAnnounceInterval,
		}, nil
	}

	result := l.Store.AddPeer(*req)
	l.Stats.RecordEvent(stats.Announce)
	if req.Event == bittorrent.Completed {
		l.Stats.RecordEvent(stats.Completed)
	}

	if l.Sync != nil {
		l.Sync.Broadcast(req.InfoHash, req.Peer, req.Left == 0, req.Event == bittorrent.Stopped)
	}

	numWant := int(req.NumWant)
	var peers []bittorrent.Peer
	if req.Event != bittorrent.Stopped {
		peers = l.Store.ReturnPeers(*req, numWant)
	}

	resp := bittorrent.AnnounceResponse{
		Compact:     req.Compact,
		Complete:    int32(result.Seeders),
		Incomplete:  int32(result.Leechers),
		Interval:    l.cfg.AnnounceInterval,
		MinInterval: l.cfg.MinAnnounceInterval,
	}
	for _, p := range peers {
		if p.IP.AddressFamily == bittorrent.IPv6 {
			resp.IPv6Peers = append(resp.IPv6Peers, p)
		} else {
			resp.IPv4Peers = append(resp.IPv4Peers, p)
		}
	}

	log.Debug("service: announce handled", log.Fields{
		"infohash": req.InfoHash,
		"event":    req.Event.String(),
		"numPeers": len(peers),
	})
	return resp, nil
}

// HandleScrape looks up aggregate counts for every infohash in req.
func (l *Logic) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest) (bittorrent.ScrapeResponse, error) {
	if err := l.Sanitizer.SanitizeScrape(req); err != nil {
		l.Stats.RecordEvent(stats.BadRequest)
		return bittorrent.ScrapeResponse{}, err
	}
	l.Stats.RecordEvent(stats.Scrape)

	resp := bittorrent.ScrapeResponse{Files: make([]bittorrent.Scrape, 0, len(req.InfoHashes))}
	for _, ih := range req.InfoHashes {
		sc, _ := l.Store.Scrape(ih)
		resp.Files = append(resp.Files, sc)
	}
	return resp, nil
}

// Gauges reads the live torrent/seeder/leecher counts for a /stats
// response. It walks every shard, so callers shouldn't poll it on the hot
// path; spec §4.D gates it behind the stats responder instead.
func (l *Logic) Gauges() stats.TorrentGauges {
	var seeders, leechers uint64
	cur := &storage.Cursor{}
	for {
		var entries []storage.ScrapeEntry
		entries, cur = l.Store.FullScrape(cur, 4096)
		for _, e := range entries {
			seeders += uint64(e.Seeders)
			leechers += uint64(e.Leechers)
		}
		if cur == nil {
			break
		}
	}
	return stats.TorrentGauges{
		Torrents: l.Store.NumTorrents(),
		Seeders:  seeders,
		Leechers: leechers,
	}
}
