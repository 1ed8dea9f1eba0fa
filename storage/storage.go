// Package storage implements the tracker's peer store: a sharded,
// bucketed, time-windowed index from infohash to peers, grounded on the
// teacher's storage/memory.peerStore (per-shard RWMutex over a
// map[InfoHash]swarm) but reworked to satisfy the spec's explicit bucket-
// ring expiry model. The ring geometry comes from original_source/opentracker.c,
// which the teacher's own memory store does not implement (it expires peers
// via a flat GC ticker instead of bucket rotation).
package storage

import (
	"errors"
	"time"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// Default geometry, named after the constants in original_source/opentracker.c.
const (
	DefaultBucketCount   = 24
	DefaultBucketTimeout = 90 * time.Second
	DefaultShardCountLog = 8 // N = 1 << DefaultShardCountLog shards
)

// ErrNoSuchTorrent names the case of an infohash the store has never seen
// (or has since GC'd). PeerStore does not return it: Scrape reports that
// case through its ok result.
var ErrNoSuchTorrent = errors.New("storage: no such torrent")

// peerFlag holds the per-peer bits described in spec §3 (Peer: flags byte).
type peerFlag uint8

const (
	flagSeeder peerFlag = 1 << iota
	flagCompletedOnce
	flagLiveSyncOrigin
)

// peerRecord is the fixed-shape value stored in a bucket: 16-byte IP
// (IPv4 addresses are always stored v4-mapped), 2-byte port, and a
// flag byte. It is never stored by pointer (spec §3).
type peerRecord struct {
	id    bittorrent.PeerID
	ip    [16]byte
	af    bittorrent.AddressFamily
	port  uint16
	flags peerFlag
}

func recordFromPeer(p bittorrent.Peer, fromLiveSync bool, seeder bool) peerRecord {
	r := peerRecord{id: p.ID, port: p.Port, af: p.IP.AddressFamily}
	ip16 := p.IP.IP.To16()
	copy(r.ip[:], ip16)
	if seeder {
		r.flags |= flagSeeder
	}
	if fromLiveSync {
		r.flags |= flagLiveSyncOrigin
	}
	return r
}

func (r peerRecord) toPeer() bittorrent.Peer {
	ip := make([]byte, 16)
	copy(ip, r.ip[:])
	return bittorrent.Peer{
		ID:   r.id,
		Port: r.port,
		IP:   bittorrent.IP{IP: ip, AddressFamily: r.af},
	}
}

func (r peerRecord) endpointEqual(p bittorrent.Peer) bool {
	return r.port == p.Port && r.toPeer().IP.IP.Equal(p.IP.IP)
}

// AnnounceResult is the tuple add_peer returns per spec §4.C.
type AnnounceResult struct {
	Seeders    uint32
	Leechers   uint32
	Completed  uint64
	NumPeers   int
}

// ScrapeEntry is one row of a full-scrape response.
type ScrapeEntry struct {
	InfoHash   bittorrent.InfoHash
	Seeders    uint32
	Leechers   uint32
	Downloaded uint64
}
