package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/clock"
	"github.com/swarmkeep/swarmkeep/pkg/log"
)

// Config controls the store's shard count and ring geometry. Zero values
// fall back to the defaults named in storage.go.
type Config struct {
	ShardCountBits int
	BucketCount    int
	BucketTimeout  time.Duration

	// GCInterval is how often ExpireSweep walks shards dropping
	// torrents that have gone empty. Zero disables the automatic sweep;
	// the caller can still invoke ExpireSweep manually.
	GCInterval time.Duration
}

func (c Config) geometry() ringGeometry {
	g := defaultGeometry()
	if c.BucketCount > 0 {
		g.buckets = c.BucketCount
	}
	if c.BucketTimeout > 0 {
		g.timeout = int64(c.BucketTimeout.Seconds())
	}
	return g
}

func (c Config) shardBits() uint {
	if c.ShardCountBits > 0 {
		return uint(c.ShardCountBits)
	}
	return DefaultShardCountLog
}

// PeerStore is the sharded, bucketed, in-memory swarm index. It is the sole
// authority the HTTP and UDP frontends consult for announce/scrape state
// (spec §4.C); nothing else in the tracker holds peer data.
type PeerStore struct {
	cfg       Config
	geometry  ringGeometry
	shardBits uint
	shards    []*shard
	clock     *clock.Clock

	torrentCount atomic.Int64

	closing chan struct{}
	wg      sync.WaitGroup
}

// New builds a PeerStore backed by c. c may reference an externally-owned
// clock so the whole process shares one time source (spec §4.A); if nil a
// private clock is started for the store. Stop does not stop that clock
// either.
func New(cfg Config, c *clock.Clock) *PeerStore {
	bits := cfg.shardBits()
	n := 1 << bits
	ps := &PeerStore{
		cfg:       cfg,
		geometry:  cfg.geometry(),
		shardBits: bits,
		shards:    make([]*shard, n),
		clock:     c,
		closing:   make(chan struct{}),
	}
	if ps.clock == nil {
		ps.clock = clock.New()
	}
	for i := range ps.shards {
		ps.shards[i] = newShard()
	}

	if cfg.GCInterval > 0 {
		ps.wg.Add(1)
		go ps.gcLoop(cfg.GCInterval)
	}
	return ps
}

func (ps *PeerStore) shardFor(ih bittorrent.InfoHash) *shard {
	return ps.shards[shardIndex(ih, ps.shardBits)]
}

func (ps *PeerStore) currentSlot() int64 {
	return ps.geometry.slotFor(ps.clock.Now())
}

// AddPeer records (or refreshes, or removes, depending on req.Event) a
// peer's membership in the swarm for req.InfoHash, and returns the live
// counts and completed total needed to build an AnnounceResponse.
func (ps *PeerStore) AddPeer(req bittorrent.AnnounceRequest) AnnounceResult {
	return ps.addPeer(req, false)
}

func (ps *PeerStore) addPeer(req bittorrent.AnnounceRequest, fromLiveSync bool) AnnounceResult {
	sh := ps.shardFor(req.InfoHash)
	slot := ps.currentSlot()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sw := sh.swarmLocked(req.InfoHash, req.Event != bittorrent.Stopped, ps.geometry)
	if sw == nil {
		// Stopped event for a torrent we hold no state for: nothing to do.
		return AnnounceResult{}
	}
	if sw.lastSlot == 0 {
		ps.torrentCount.Add(1)
	}
	sw.rotate(slot)

	if req.Event == bittorrent.Stopped {
		sw.drop(req.Peer)
		if sw.empty() {
			delete(sh.torrents, req.InfoHash)
			ps.torrentCount.Add(-1)
		}
		return AnnounceResult{Seeders: sw.seeders, Leechers: sw.leechers, Completed: sw.completed}
	}

	seeder := req.Left == 0
	rec := recordFromPeer(req.Peer, fromLiveSync, seeder)
	sw.upsert(slot, rec)

	if req.Event == bittorrent.Completed && !fromLiveSync {
		sw.bumpCompleted(keyFor(rec))
	}

	live := len(sw.location)
	return AnnounceResult{
		Seeders:   sw.seeders,
		Leechers:  sw.leechers,
		Completed: sw.completed,
		NumPeers:  live,
	}
}

// ApplyRemotePeer folds a peer delta received from another tracker instance
// via live-sync into the local store. It never increments the completed
// counter itself (the originating tracker already counted it) and the
// resulting record is flagged so a future live-sync flush doesn't bounce it
// back out to the cluster.
func (ps *PeerStore) ApplyRemotePeer(ih bittorrent.InfoHash, p bittorrent.Peer, seeder bool, stopped bool) {
	event := bittorrent.None
	if stopped {
		event = bittorrent.Stopped
	}
	ps.addPeer(bittorrent.AnnounceRequest{
		InfoHash: ih,
		Peer:     p,
		Event:    event,
		Left:     leftFor(seeder),
	}, true)
}

func leftFor(seeder bool) uint64 {
	if seeder {
		return 0
	}
	return 1
}

// ReturnPeers selects up to numWant peers to return to the requester for
// req.InfoHash, excluding the requester itself, biasing leechers toward
// seeders first (BEP-3) and sampling uniformly within each role when the
// swarm is larger than numWant.
func (ps *PeerStore) ReturnPeers(req bittorrent.AnnounceRequest, numWant int) []bittorrent.Peer {
	sh := ps.shardFor(req.InfoHash)
	slot := ps.currentSlot()

	sh.mu.Lock()
	sw := sh.swarmLocked(req.InfoHash, false, ps.geometry)
	if sw == nil {
		sh.mu.Unlock()
		return nil
	}
	sw.rotate(slot)
	all := sw.snapshot()
	sh.mu.Unlock()

	filtered := all[:0:0]
	for _, r := range all {
		if r.endpointEqual(req.Peer) {
			continue
		}
		filtered = append(filtered, r)
	}

	seeders, leechers := splitByRole(filtered)
	isSeeder := req.Left == 0

	var picked []peerRecord
	if isSeeder {
		// A seeder only benefits from leechers; still round out with
		// other seeders if there aren't enough.
		picked = append(picked, reservoirSample(leechers, numWant)...)
		if len(picked) < numWant {
			picked = append(picked, reservoirSample(seeders, numWant-len(picked))...)
		}
	} else {
		picked = append(picked, reservoirSample(seeders, numWant)...)
		if len(picked) < numWant {
			picked = append(picked, reservoirSample(leechers, numWant-len(picked))...)
		}
	}

	out := make([]bittorrent.Peer, 0, len(picked))
	for _, r := range picked {
		out = append(out, r.toPeer())
	}
	return out
}

// Scrape returns the aggregate counts for a single infohash. ok is false if
// the store holds no state for it (an empty Scrape is still returned, with
// all-zero counts, per BEP-48 rather than an error).
func (ps *PeerStore) Scrape(ih bittorrent.InfoHash) (bittorrent.Scrape, bool) {
	sh := ps.shardFor(ih)
	slot := ps.currentSlot()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sw := sh.swarmLocked(ih, false, ps.geometry)
	if sw == nil {
		return bittorrent.Scrape{InfoHash: ih}, false
	}
	sw.rotate(slot)
	return bittorrent.Scrape{
		InfoHash:   ih,
		Complete:   sw.seeders,
		Incomplete: sw.leechers,
		Downloaded: saturatingUint32(sw.completed),
	}, true
}

func saturatingUint32(v uint64) uint32 {
	if v > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}

// Cursor resumes a FullScrape across calls without holding any shard lock
// between them, so a long-running dump doesn't stall announces.
type Cursor struct {
	shardIdx int
	seen     map[bittorrent.InfoHash]struct{}
}

// FullScrape returns up to limit ScrapeEntry rows starting from cur (the
// zero Cursor starts from the beginning) and the cursor to resume from, or a
// nil cursor once every shard has been exhausted. Grounded on the teacher's
// shard-by-shard GC walk, generalized into a resumable dump since the spec's
// full-scrape endpoint (§4.C) has no equivalent in the example pack.
func (ps *PeerStore) FullScrape(cur *Cursor, limit int) ([]ScrapeEntry, *Cursor) {
	start := time.Now()
	defer func() {
		PromFullscrapeDurationMilliseconds.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()
	if cur == nil {
		cur = &Cursor{}
	}
	entries := make([]ScrapeEntry, 0, limit)

	for cur.shardIdx < len(ps.shards) {
		sh := ps.shards[cur.shardIdx]
		sh.mu.Lock()
		for ih, sw := range sh.torrents {
			if cur.seen != nil {
				if _, done := cur.seen[ih]; done {
					continue
				}
			}
			entries = append(entries, ScrapeEntry{
				InfoHash:   ih,
				Seeders:    sw.seeders,
				Leechers:   sw.leechers,
				Downloaded: saturatingUint32(sw.completed),
			})
			if cur.seen == nil {
				cur.seen = make(map[bittorrent.InfoHash]struct{})
			}
			cur.seen[ih] = struct{}{}
			if len(entries) >= limit {
				sh.mu.Unlock()
				return entries, cur
			}
		}
		sh.mu.Unlock()
		cur.shardIdx++
		cur.seen = nil
	}
	return entries, nil
}

// ExpireSweep walks every shard once, rotating each swarm's ring forward to
// the current slot and dropping any torrent left with no peers. It is safe
// to call concurrently with announces; each shard is locked only for the
// duration of its own walk.
func (ps *PeerStore) ExpireSweep() {
	start := time.Now()
	slot := ps.currentSlot()
	var seeders, leechers uint64
	for _, sh := range ps.shards {
		sh.mu.Lock()
		for ih, sw := range sh.torrents {
			sw.rotate(slot)
			if sw.empty() {
				delete(sh.torrents, ih)
				ps.torrentCount.Add(-1)
				continue
			}
			seeders += uint64(sw.seeders)
			leechers += uint64(sw.leechers)
		}
		sh.mu.Unlock()
	}
	PromGCDurationMilliseconds.Observe(float64(time.Since(start).Microseconds()) / 1000)
	PromInfohashesCount.Set(float64(ps.torrentCount.Load()))
	PromSeedersCount.Set(float64(seeders))
	PromLeechersCount.Set(float64(leechers))
}

// NumTorrents reports the number of swarms currently tracked, for /stats.
func (ps *PeerStore) NumTorrents() int64 { return ps.torrentCount.Load() }

// SeedDownloaded primes a torrent's downloaded-completed counter from the
// cold-load state file (spec §6), without fabricating any peers for it; the
// swarm still starts with zero live peers and will only gain them from real
// announces. It is a no-op if downloaded is less than the swarm's current
// counter, so loading the same file twice (or a stale snapshot) can't move
// the counter backwards.
func (ps *PeerStore) SeedDownloaded(ih bittorrent.InfoHash, downloaded uint64) {
	sh := ps.shardFor(ih)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	_, existed := sh.torrents[ih]
	sw := sh.swarmLocked(ih, true, ps.geometry)
	if !existed {
		ps.torrentCount.Add(1)
		sw.rotate(ps.currentSlot())
	}
	if downloaded > sw.completed {
		sw.completed = downloaded
	}
}

func (ps *PeerStore) gcLoop(interval time.Duration) {
	defer ps.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ps.ExpireSweep()
		case <-ps.closing:
			return
		}
	}
}

// Stop halts the background GC sweep and waits for it to exit. It does not
// stop a clock the caller supplied to New.
func (ps *PeerStore) Stop(ctx context.Context) error {
	close(ps.closing)
	done := make(chan struct{})
	go func() {
		ps.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Debug("storage: peer store stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
