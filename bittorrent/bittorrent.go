// Package bittorrent holds the wire-format-independent types shared by the
// HTTP and UDP tracker frontends: infohashes, peer IDs, announce/scrape
// requests and responses, and the small set of errors that are allowed to
// leak a message back to a client.
package bittorrent

import (
	"net"
	"strings"
	"time"
)

// InfoHash is the 20-byte SHA-1 digest identifying a swarm.
type InfoHash [20]byte

// InfoHashFromBytes builds an InfoHash from a byte slice. It panics if b is
// not 20 bytes long, matching the teacher's fail-fast constructors for
// fixed-size protocol fields.
func InfoHashFromBytes(b []byte) InfoHash {
	if len(b) != 20 {
		panic("bittorrent: infohash must be 20 bytes")
	}
	var ih InfoHash
	copy(ih[:], b)
	return ih
}

func (ih InfoHash) String() string { return string(ih[:]) }

// PeerID is the 20-byte identifier a client attaches to its announces.
type PeerID [20]byte

// PeerIDFromBytes builds a PeerID from a byte slice. It panics if b is not
// 20 bytes long.
func PeerIDFromBytes(b []byte) PeerID {
	if len(b) != 20 {
		panic("bittorrent: peer id must be 20 bytes")
	}
	var id PeerID
	copy(id[:], b)
	return id
}

func (id PeerID) String() string { return string(id[:]) }

// ClientID is the client-software fingerprint embedded in most PeerIDs.
type ClientID [6]byte

// NewClientID extracts a ClientID from a PeerID, skipping the leading '-'
// used by Azureus-style client IDs.
func NewClientID(pid PeerID) ClientID {
	var cid ClientID
	if pid[0] == '-' {
		copy(cid[:], pid[1:7])
	} else {
		copy(cid[:], pid[:6])
	}
	return cid
}

// AddressFamily distinguishes the two peer address shapes the tracker must
// return separately (BEP-23 compact peers vs compact peers6).
type AddressFamily uint8

const (
	IPv4 AddressFamily = iota
	IPv6
)

// IP wraps a net.IP with the address family it was classified under, since
// net.IP alone does not reliably round-trip a caller's v4-vs-v6 intent.
type IP struct {
	net.IP
	AddressFamily
}

// Peer is the fixed-shape record the store keeps: an address, a port, and
// the peer ID the client announced with. It is always copied by value.
type Peer struct {
	ID   PeerID
	IP   IP
	Port uint16
}

// Equal reports whether p and x refer to the same peer identity.
func (p Peer) Equal(x Peer) bool { return p.EqualEndpoint(x) && p.ID == x.ID }

// EqualEndpoint reports whether p and x share the same network endpoint,
// which is what re-announce deduplication keys on.
func (p Peer) EqualEndpoint(x Peer) bool { return p.Port == x.Port && p.IP.IP.Equal(x.IP.IP) }

// Event is the lifecycle signal a client attaches to an announce.
type Event uint8

const (
	None Event = iota
	Started
	Stopped
	Completed
)

var eventNames = map[Event]string{
	None:      "",
	Started:   "started",
	Stopped:   "stopped",
	Completed: "completed",
}

var namesToEvent = func() map[string]Event {
	m := make(map[string]Event, len(eventNames)+1)
	for e, s := range eventNames {
		m[s] = e
	}
	m["none"] = None
	return m
}()

// ErrUnknownEvent is returned by NewEvent for an unrecognized event string.
var ErrUnknownEvent = ClientError("unknown event")

// NewEvent parses the event query parameter into an Event.
func NewEvent(s string) (Event, error) {
	if e, ok := namesToEvent[strings.ToLower(s)]; ok {
		return e, nil
	}
	return None, ErrUnknownEvent
}

func (e Event) String() string { return eventNames[e] }

// Params gives access to a request's optional query parameters regardless
// of whether they arrived over HTTP query string or BEP-41 UDP URL data.
type Params interface {
	String(key string) (string, bool)
}

// ClientError is an error whose message is safe to relay verbatim to the
// remote BitTorrent client (as opposed to an internal error, which is
// logged but reported generically).
type ClientError string

func (c ClientError) Error() string { return string(c) }

// ErrInvalidIP indicates a peer announced with an address that is neither a
// usable IPv4 nor IPv6 endpoint.
var ErrInvalidIP = ClientError("invalid IP")

// AnnounceRequest is the parsed, sanitized form of an announce, regardless
// of the wire protocol it arrived over.
type AnnounceRequest struct {
	InfoHash        InfoHash
	Event           Event
	NumWant         uint32
	NumWantProvided bool
	Compact         bool
	Left            uint64
	Downloaded      uint64
	Uploaded        uint64

	Peer
	Params
}

// AnnounceResponse is what the store + logic layer produce for an announce;
// frontends encode it into the wire format.
type AnnounceResponse struct {
	Compact     bool
	Complete    int32
	Incomplete  int32
	Interval    time.Duration
	MinInterval time.Duration
	IPv4Peers   []Peer
	IPv6Peers   []Peer
}

// ScrapeRequest names the infohashes a client wants aggregate counts for.
type ScrapeRequest struct {
	InfoHashes []InfoHash
	Params     Params
}

// Scrape is the aggregate state of one swarm.
type Scrape struct {
	InfoHash   InfoHash
	Complete   uint32
	Incomplete uint32
	Downloaded uint32
}

// ScrapeResponse is the per-infohash aggregate counts for a scrape.
type ScrapeResponse struct {
	Files []Scrape
}
