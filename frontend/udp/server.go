package udp

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmkeep/swarmkeep/service"
)

// packetBufSize is large enough for any legitimate BEP-15 datagram (an
// announce's fixed body plus a generous allowance for BEP-41 URL-data
// options); anything larger is someone else's packet and gets dropped.
const packetBufSize = 2048

// Config carries the UDP frontend's listen address and protocol knobs.
type Config struct {
	Addr                   string
	MaxClockSkew           time.Duration
	SecretRotationInterval time.Duration
}

// Server answers BEP-15 connect/announce/scrape datagrams on a UDP socket.
// Grounded on the teacher's frontend/udp Frontend: a single read loop
// handing each datagram to its own goroutine, a closing channel plus
// WaitGroup for shutdown, and a connection-ID check gating every action
// but connect.
type Server struct {
	cfg  Config
	conn *net.UDPConn
	rot  *secretRotator

	logic *service.Logic

	bufPool sync.Pool

	closing          chan struct{}
	closeOnce        sync.Once
	wg               sync.WaitGroup
	droppedBadConnID atomic.Uint64
	droppedMalformed atomic.Uint64
}

// stopOnce closes s.closing exactly once, since both Serve's ctx-watcher
// goroutine and an explicit Stop call may race to shut the socket down.
func (s *Server) stopOnce() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// NewServer resolves cfg.Addr, binds a UDP socket, and starts the secret
// rotator. Call Serve to begin reading datagrams.
func NewServer(cfg Config, logic *service.Logic) (*Server, error) {
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = time.Minute
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	rot, err := newSecretRotator(cfg.SecretRotationInterval)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		conn:    conn,
		rot:     rot,
		logic:   logic,
		closing: make(chan struct{}),
	}
	s.bufPool.New = func() interface{} {
		b := make([]byte, packetBufSize)
		return &b
	}
	return s, nil
}

// Serve reads datagrams until ctx is canceled or the socket errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.stopOnce()
		s.conn.SetReadDeadline(time.Now())
	}()

	s.wg.Add(1)
	defer s.wg.Done()

	for {
		select {
		case <-s.closing:
			return nil
		default:
		}

		bufPtr := s.bufPool.Get().(*[]byte)
		buf := *bufPtr
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.bufPool.Put(bufPtr)
			select {
			case <-s.closing:
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		if n == 0 {
			s.bufPool.Put(bufPtr)
			continue
		}

		packet := append([]byte(nil), buf[:n]...)
		ip := addr.IP
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.bufPool.Put(bufPtr)
			s.handleDatagram(packet, ip, addr)
		}()
	}
}

// handleDatagram parses the 16-byte connection/action/transaction header
// common to every BEP-15 packet, validates the connection ID for every
// action but connect, and dispatches to the matching handler.
func (s *Server) handleDatagram(packet []byte, ip net.IP, addr *net.UDPAddr) {
	start := time.Now()
	actionName := "unknown"
	var err error
	defer func() { recordResponseDuration(actionName, err, time.Since(start)) }()

	if len(packet) < 16 {
		s.droppedMalformed.Add(1)
		return
	}

	connID := packet[0:8]
	action := binary.BigEndian.Uint32(packet[8:12])
	txID := packet[12:16]
	body := packet[16:]

	now := time.Now()
	if action != connectActionID {
		if !validateConnectionID(connID, ip, now, s.cfg.MaxClockSkew, s.rot) {
			// Anti-amplification: silently drop rather than ack a forged
			// or expired connection ID.
			s.droppedBadConnID.Add(1)
			return
		}
	}

	switch action {
	case connectActionID:
		actionName = "connect"
		if !bytes.Equal(connID, initialConnectionID) {
			err = errMalformedPacket
			return
		}
		current, _ := s.rot.secrets()
		id := newConnectionIDGenerator(current).generate(ip, now)
		writeConnectionID(&udpWriter{s.conn, addr}, txID, id)

	case announceActionID:
		actionName = "announce"
		ar, perr := parseAnnounce(body, ip)
		if perr != nil {
			err = perr
			writeError(&udpWriter{s.conn, addr}, txID, err)
			return
		}
		resp, herr := s.logic.HandleAnnounce(context.Background(), ar)
		if herr != nil {
			err = herr
			writeError(&udpWriter{s.conn, addr}, txID, err)
			return
		}
		writeAnnounce(&udpWriter{s.conn, addr}, txID, &resp)

	case scrapeActionID:
		actionName = "scrape"
		sr, perr := parseScrape(body)
		if perr != nil {
			err = perr
			writeError(&udpWriter{s.conn, addr}, txID, err)
			return
		}
		resp, herr := s.logic.HandleScrape(context.Background(), sr)
		if herr != nil {
			err = herr
			writeError(&udpWriter{s.conn, addr}, txID, err)
			return
		}
		writeScrape(&udpWriter{s.conn, addr}, txID, &resp)

	default:
		err = errUnknownAction
		writeError(&udpWriter{s.conn, addr}, txID, err)
	}
}

// Stop closes the UDP socket and waits for in-flight datagrams to finish.
func (s *Server) Stop() error {
	s.stopOnce()
	s.conn.SetReadDeadline(time.Now())
	s.wg.Wait()
	s.rot.stop()
	return s.conn.Close()
}

// DroppedBadConnectionID reports how many datagrams were silently dropped
// for carrying an invalid or expired connection ID.
func (s *Server) DroppedBadConnectionID() uint64 { return s.droppedBadConnID.Load() }

// udpWriter adapts a UDP socket + peer address to io.Writer for the
// response writers, mirroring the teacher's ResponseWriter.
type udpWriter struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (w *udpWriter) Write(b []byte) (int, error) {
	return w.conn.WriteToUDP(b, w.addr)
}
