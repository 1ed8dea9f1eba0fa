package storage

import (
	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// ringGeometry fixes the bucket count and timeout a swarm rotates on. It is
// threaded through instead of read from package-level constants so tests can
// use a short timeout without racing a real clock.
type ringGeometry struct {
	buckets int
	timeout int64 // seconds per bucket
}

func defaultGeometry() ringGeometry {
	return ringGeometry{buckets: DefaultBucketCount, timeout: int64(DefaultBucketTimeout.Seconds())}
}

// slotFor maps a unix timestamp to its absolute slot number,
// now / OT_POOLS_TIMEOUT; bucketIndex applies the % OT_POOLS_COUNT half of
// original_source/opentracker.c's ot_vector bucket selection.
func (g ringGeometry) slotFor(now int64) int64 {
	return now / g.timeout
}

func (g ringGeometry) bucketIndex(slot int64) int {
	return int(slot % int64(g.buckets))
}

type peerKey struct {
	ip   [16]byte
	port uint16
}

func keyFor(r peerRecord) peerKey { return peerKey{ip: r.ip, port: r.port} }

// bucket holds the peers that last touched this swarm during one ring slot.
type bucket struct {
	peers map[peerKey]peerRecord
}

// swarm is the per-infohash state: a ring of buckets plus an index of which
// bucket currently holds each known peer, so a re-announce can relocate the
// peer in O(1) instead of scanning. Seeder/leecher counts are maintained
// incrementally rather than recomputed per announce.
type swarm struct {
	geometry ringGeometry

	lastSlot int64
	buckets  []bucket
	location map[peerKey]int64 // peerKey -> slot it currently lives in

	seeders  uint32
	leechers uint32

	// completed saturates at ^uint64(0) rather than wrapping, per spec.
	completed uint64
	// completedOnce tracks which peers have already contributed to
	// completed, so a flapping client can't inflate the counter by
	// re-sending "completed" on every announce.
	completedOnce map[peerKey]struct{}
}

func newSwarm(g ringGeometry) *swarm {
	return &swarm{
		geometry:      g,
		buckets:       make([]bucket, g.buckets),
		location:      make(map[peerKey]int64),
		completedOnce: make(map[peerKey]struct{}),
	}
}

// rotate advances the swarm's notion of "now", discarding any bucket whose
// slot is about to be reused. A peer that hasn't re-announced in
// buckets*timeout seconds is dropped here, which is the ring's only form of
// expiry: there is no separate per-peer deadline.
func (s *swarm) rotate(nowSlot int64) {
	if s.lastSlot == 0 {
		s.lastSlot = nowSlot
		return
	}
	if nowSlot <= s.lastSlot {
		return
	}
	span := nowSlot - s.lastSlot
	if span > int64(s.geometry.buckets) {
		span = int64(s.geometry.buckets)
	}
	for i := int64(0); i < span; i++ {
		slot := s.lastSlot + i + 1
		idx := s.geometry.bucketIndex(slot)
		b := &s.buckets[idx]
		for k, r := range b.peers {
			s.removeLocked(k, r)
		}
		b.peers = nil
	}
	s.lastSlot = nowSlot
}

func (s *swarm) removeLocked(k peerKey, r peerRecord) {
	delete(s.location, k)
	if r.flags&flagSeeder != 0 {
		if s.seeders > 0 {
			s.seeders--
		}
	} else if s.leechers > 0 {
		s.leechers--
	}
}

// upsert places r into the current slot, relocating it out of whatever slot
// it previously occupied. It returns the record's previous seeder/leecher
// classification (existed=false and wasSeeder=false if the peer was not
// already present).
func (s *swarm) upsert(nowSlot int64, r peerRecord) (existed bool, wasSeeder bool) {
	k := keyFor(r)
	if prevSlot, ok := s.location[k]; ok {
		existed = true
		prevIdx := s.geometry.bucketIndex(prevSlot)
		if prev, ok2 := s.buckets[prevIdx].peers[k]; ok2 {
			wasSeeder = prev.flags&flagSeeder != 0
			delete(s.buckets[prevIdx].peers, k)
		}
		if wasSeeder {
			if s.seeders > 0 {
				s.seeders--
			}
		} else if s.leechers > 0 {
			s.leechers--
		}
	}

	idx := s.geometry.bucketIndex(nowSlot)
	if s.buckets[idx].peers == nil {
		s.buckets[idx].peers = make(map[peerKey]peerRecord)
	}
	s.buckets[idx].peers[k] = r
	s.location[k] = nowSlot

	if r.flags&flagSeeder != 0 {
		s.seeders++
	} else {
		s.leechers++
	}
	return existed, wasSeeder
}

// drop removes a peer entirely (event=stopped), per spec §4.C.
func (s *swarm) drop(r bittorrent.Peer) {
	k := peerKey{port: r.Port}
	copy(k.ip[:], r.IP.IP.To16())
	slot, ok := s.location[k]
	if !ok {
		return
	}
	idx := s.geometry.bucketIndex(slot)
	if rec, ok2 := s.buckets[idx].peers[k]; ok2 {
		delete(s.buckets[idx].peers, k)
		s.removeLocked(k, rec)
	}
}

// bumpCompleted saturates at the uint64 max rather than wrapping, and only
// fires once per distinct peer.
func (s *swarm) bumpCompleted(k peerKey) {
	if _, ok := s.completedOnce[k]; ok {
		return
	}
	s.completedOnce[k] = struct{}{}
	if s.completed != ^uint64(0) {
		s.completed++
	}
}

// snapshot returns every live peer currently tracked, for scrape/sampling.
func (s *swarm) snapshot() []peerRecord {
	out := make([]peerRecord, 0, len(s.location))
	for k, slot := range s.location {
		idx := s.geometry.bucketIndex(slot)
		if r, ok := s.buckets[idx].peers[k]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *swarm) empty() bool {
	return len(s.location) == 0
}
