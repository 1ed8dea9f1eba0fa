// Package stats tracks process-wide tracker counters: announce/scrape
// throughput, completed events, and the live peer/seeder/torrent gauges the
// peer store reports. The named-event shape (Announce, Scrape, Completed,
// ...) is grounded on the teacher's tracker/stats.Stats, but the channel +
// single consumer goroutine is replaced with plain atomic counters, since
// the spec requires stats updates not serialize behind one goroutine on the
// hot announce/scrape path.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event names an occurrence RecordEvent increments a counter for.
type Event int

const (
	Announce Event = iota
	Scrape
	Completed
	ConnectUDP
	BadRequest
	Unapproved
	ConnIDRejected
)

// Stats holds the process-wide atomic counters plus a start time for
// uptime reporting (spec §4.D, exposed at /stats).
type Stats struct {
	start time.Time

	announces      atomic.Uint64
	scrapes        atomic.Uint64
	completed      atomic.Uint64
	connectsUDP    atomic.Uint64
	badRequests    atomic.Uint64
	unapproved     atomic.Uint64
	connIDRejected atomic.Uint64

	mem *MemStatsWrapper

	latencyMu sync.Mutex
	p50       *Percentile
	p99       *Percentile
}

// New creates a Stats tracker. verboseMem controls whether the memory
// wrapper keeps the full runtime.MemStats or the trimmed BasicMemStats
// subset; /stats itself prints only mem_alloc, and only in plain mode.
func New(verboseMem bool) *Stats {
	return &Stats{
		start: time.Now(),
		mem:   NewMemStatsWrapper(verboseMem),
		p50:   NewPercentile(0.5),
		p99:   NewPercentile(0.99),
	}
}

// RecordAnnounceLatency adds one latency sample to the announce response
// time distribution. Percentile.AddSample isn't safe for concurrent callers
// on its own, so access is serialized here; the hot path this protects
// (updating two small fixed-size slices) is cheap next to the announce
// itself.
func (s *Stats) RecordAnnounceLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	s.latencyMu.Lock()
	s.p50.AddSample(ms)
	s.p99.AddSample(ms)
	s.latencyMu.Unlock()
}

// Uptime reports how long this process has been serving.
func (s *Stats) Uptime() time.Duration { return time.Since(s.start) }

// RecordEvent increments the counter for e. Unlike the teacher's
// channel-fed version this never blocks and is safe from any number of
// concurrent goroutines, which is required since every announce/scrape
// handler calls it directly rather than through a dispatcher.
func (s *Stats) RecordEvent(e Event) {
	switch e {
	case Announce:
		s.announces.Add(1)
	case Scrape:
		s.scrapes.Add(1)
	case Completed:
		s.completed.Add(1)
	case ConnectUDP:
		s.connectsUDP.Add(1)
	case BadRequest:
		s.badRequests.Add(1)
	case Unapproved:
		s.unapproved.Add(1)
	case ConnIDRejected:
		s.connIDRejected.Add(1)
	default:
		panic("stats: RecordEvent called with an unknown event")
	}
}

// Snapshot is a point-in-time, immutable copy of every counter, suitable
// for marshaling by a responder without holding any lock.
type Snapshot struct {
	UptimeSeconds  int64
	Announces      uint64
	Scrapes        uint64
	Completed      uint64
	ConnectsUDP    uint64
	BadRequests    uint64
	Unapproved     uint64
	ConnIDRejected uint64

	Torrents int64
	Seeders  uint64
	Leechers uint64

	AnnounceLatencyP50Ms float64
	AnnounceLatencyP99Ms float64

	Mem *MemStatsWrapper `json:",omitempty"`
}

// TorrentGauges is supplied by the caller (the peer store) at snapshot
// time, since Stats itself holds no swarm state.
type TorrentGauges struct {
	Torrents int64
	Seeders  uint64
	Leechers uint64
}

// Snapshot reads every counter into a Snapshot. If includeMem is true the
// runtime memory statistics are refreshed and attached, which is
// comparatively expensive (it stops the world briefly) and so is gated
// behind the verbose=1 parameter of a /stats request rather than always
// collected.
func (s *Stats) Snapshot(g TorrentGauges, includeMem bool) Snapshot {
	snap := Snapshot{
		UptimeSeconds:  int64(s.Uptime().Seconds()),
		Announces:      s.announces.Load(),
		Scrapes:        s.scrapes.Load(),
		Completed:      s.completed.Load(),
		ConnectsUDP:    s.connectsUDP.Load(),
		BadRequests:    s.badRequests.Load(),
		Unapproved:     s.unapproved.Load(),
		ConnIDRejected: s.connIDRejected.Load(),
		Torrents:       g.Torrents,
		Seeders:        g.Seeders,
		Leechers:       g.Leechers,
	}
	snap.AnnounceLatencyP50Ms = s.p50.Value()
	snap.AnnounceLatencyP99Ms = s.p99.Value()
	if includeMem {
		s.mem.Update()
		snap.Mem = s.mem
	}
	return snap
}
