package livesync

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmkeep/swarmkeep/access"
	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/log"
	"github.com/swarmkeep/swarmkeep/storage"
)

const (
	// DefaultBundleInterval is how often a non-empty outgoing buffer is
	// flushed even if it hasn't filled up, named after
	// original_source/opentracker.c's LIVESYNC_BUNDLE_INTERVAL.
	DefaultBundleInterval = 500 * time.Millisecond

	// maxDatagram keeps bundled packets under the common path MTU so
	// live-sync traffic never fragments.
	maxDatagram = 1400
)

// Config describes the multicast group this tracker joins to exchange peer
// deltas with the rest of its cluster (spec §6's
// livesync.cluster.listen / livesync.cluster.node_ip directives).
type Config struct {
	TrackerID      string
	ListenAddr     string // multicast group:port, e.g. "239.192.0.1:9322"
	Interface      *net.Interface
	BundleInterval time.Duration
}

// Syncer joins a multicast group, batches local peer deltas into it, and
// applies deltas received from other members into a local PeerStore.
type Syncer struct {
	cfg   Config
	conn  *net.UDPConn
	group *net.UDPAddr
	store *storage.PeerStore
	perms *access.IPPermissions

	mu  sync.Mutex
	buf []byte

	closing chan struct{}
	wg      sync.WaitGroup

	droppedUnauthorized atomic.Uint64
	applied             atomic.Uint64
}

// New joins cfg.ListenAddr as a multicast group and starts the receive
// loop and bundling flusher. perms gates which source IPs are trusted to
// inject peer state (spec §4.B's MayLiveSync bit).
func New(cfg Config, store *storage.PeerStore, perms *access.IPPermissions) (*Syncer, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenMulticastUDP("udp", cfg.Interface, addr)
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(1 << 20)

	if cfg.BundleInterval <= 0 {
		cfg.BundleInterval = DefaultBundleInterval
	}

	s := &Syncer{
		cfg:     cfg,
		conn:    conn,
		group:   addr,
		store:   store,
		perms:   perms,
		closing: make(chan struct{}),
	}

	s.wg.Add(2)
	go s.receiveLoop()
	go s.flushLoop()
	return s, nil
}

// Broadcast enqueues a peer upsert/removal to be sent to the rest of the
// cluster on the next flush. Callers must never invoke this for a delta
// that itself arrived via ApplyRemotePeer, or the cluster would echo
// deltas forever.
func (s *Syncer) Broadcast(ih bittorrent.InfoHash, p bittorrent.Peer, seeder, stopped bool) {
	c := cmdPutPeer
	if stopped {
		c = cmdDelPeer
	}
	rec, err := encodeRecord(c, peerDelta{TrackerID: s.cfg.TrackerID, InfoHash: ih, Peer: p, Seeder: seeder})
	if err != nil {
		log.Warn("livesync: failed to encode outgoing record", log.Fields{"err": err.Error()})
		return
	}
	s.enqueue(rec)
}

func (s *Syncer) enqueue(rec []byte) {
	framed := make([]byte, 2+len(rec))
	binary.BigEndian.PutUint16(framed, uint16(len(rec)))
	copy(framed[2:], rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf)+len(framed) > maxDatagram {
		s.flushLocked()
	}
	s.buf = append(s.buf, framed...)
}

func (s *Syncer) flushLocked() {
	if len(s.buf) == 0 {
		return
	}
	if _, err := s.conn.WriteToUDP(s.buf, s.group); err != nil {
		log.Warn("livesync: flush failed", log.Fields{"err": err.Error()})
	}
	s.buf = s.buf[:0]
}

func (s *Syncer) flushLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.BundleInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.mu.Lock()
			s.flushLocked()
			s.mu.Unlock()
		case <-s.closing:
			s.mu.Lock()
			s.flushLocked()
			s.mu.Unlock()
			return
		}
	}
}

func (s *Syncer) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
			}
			log.Warn("livesync: read failed", log.Fields{"err": err.Error()})
			continue
		}
		if !s.perms.Check(src.IP.String(), access.MayLiveSync) {
			s.droppedUnauthorized.Add(1)
			continue
		}
		s.applyDatagram(buf[:n])
	}
}

func (s *Syncer) applyDatagram(data []byte) {
	for len(data) > 0 {
		if len(data) < 2 {
			return
		}
		n := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if n > len(data) {
			return
		}
		c, delta, err := decodeRecord(data[:n])
		data = data[n:]
		if err != nil {
			log.Warn("livesync: malformed record", log.Fields{"err": err.Error()})
			continue
		}
		if delta.TrackerID == s.cfg.TrackerID {
			// Our own broadcast looped back by the multicast fabric.
			continue
		}
		s.store.ApplyRemotePeer(delta.InfoHash, delta.Peer, delta.Seeder, c == cmdDelPeer)
		s.applied.Add(1)
	}
}

// Applied reports how many remote deltas have been folded into the local
// store since Syncer was created.
func (s *Syncer) Applied() uint64 { return s.applied.Load() }

// DroppedUnauthorized reports how many datagrams were discarded because
// their source IP lacked MayLiveSync.
func (s *Syncer) DroppedUnauthorized() uint64 { return s.droppedUnauthorized.Load() }

// Stop closes the multicast socket and waits for both background
// goroutines to exit.
func (s *Syncer) Stop() error {
	close(s.closing)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}
