package storage

import (
	"sync"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// shard guards a slice of the infohash keyspace behind its own mutex, per
// the teacher's storage/memory.peerStore sharding (so announces against
// different torrents don't serialize on a single global lock). The shard
// index is the infohash's first byte, shifted down to the configured shard
// count, matching the straight byte-prefix split original_source/opentracker.c
// uses for its own hash table partitioning.
type shard struct {
	mu       sync.Mutex
	torrents map[bittorrent.InfoHash]*swarm
}

func newShard() *shard {
	return &shard{torrents: make(map[bittorrent.InfoHash]*swarm)}
}

func shardIndex(ih bittorrent.InfoHash, shardBits uint) int {
	return int(ih[0] >> (8 - shardBits))
}

// swarmLocked returns the swarm for ih, creating it if create is true and it
// doesn't exist. Caller must hold s.mu.
func (s *shard) swarmLocked(ih bittorrent.InfoHash, create bool, geometry ringGeometry) *swarm {
	sw, ok := s.torrents[ih]
	if !ok {
		if !create {
			return nil
		}
		sw = newSwarm(geometry)
		s.torrents[ih] = sw
	}
	return sw
}
