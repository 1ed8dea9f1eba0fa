package udp

import (
	"encoding/binary"
	"net"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// Action identifiers as described in BEP 15.
const (
	connectActionID uint32 = iota
	announceActionID
	scrapeActionID
	errorActionID
)

// Option-Types as described in BEP 41.
const (
	optionEndOfOptions byte = 0x0
	optionNOP               = 0x1
	optionURLData           = 0x2
)

// initialConnectionID is the magic connect-request connection ID BEP-15
// requires clients to send on a fresh connect action.
var initialConnectionID = []byte{0, 0, 0x04, 0x17, 0x27, 0x10, 0x19, 0x80}

// eventIDs maps the wire event value to an Event.
var eventIDs = []bittorrent.Event{
	bittorrent.None,
	bittorrent.Completed,
	bittorrent.Started,
	bittorrent.Stopped,
}

var (
	errMalformedPacket   = bittorrent.ClientError("malformed packet")
	errMalformedIP       = bittorrent.ClientError("malformed IP address")
	errMalformedEvent    = bittorrent.ClientError("malformed event ID")
	errUnknownAction     = bittorrent.ClientError("unknown action ID")
	errBadConnectionID   = bittorrent.ClientError("bad connection ID")
	errUnknownOptionType = bittorrent.ClientError("unknown option type")
)

// parseAnnounce parses an AnnounceRequest out of a UDP announce packet body
// (everything after the 16-byte connect/action/transaction header),
// adapted from the teacher's ParseAnnounce. ip is the packet's source
// address, used unless the client is trusted to spoof its own (which BEP-15
// never allows, since the datagram carries no proxy-forwarded header).
func parseAnnounce(packet []byte, ip net.IP) (*bittorrent.AnnounceRequest, error) {
	const bodyLen = 82 // info_hash..port relative to this slice, see BEP-15 §"announce"
	if len(packet) < bodyLen {
		return nil, errMalformedPacket
	}

	infohash := packet[0:20]
	peerID := packet[20:40]
	downloaded := binary.BigEndian.Uint64(packet[40:48])
	left := binary.BigEndian.Uint64(packet[48:56])
	uploaded := binary.BigEndian.Uint64(packet[56:64])

	eventID := int(packet[67])
	if eventID >= len(eventIDs) {
		return nil, errMalformedEvent
	}

	if ip == nil {
		return nil, errMalformedIP
	}

	numWant := binary.BigEndian.Uint32(packet[76:80])
	port := binary.BigEndian.Uint16(packet[80:82])

	params, err := parseOptionalParameters(packet[82:])
	if err != nil {
		return nil, err
	}

	req := &bittorrent.AnnounceRequest{
		Event:           eventIDs[eventID],
		InfoHash:        bittorrent.InfoHashFromBytes(infohash),
		NumWant:         numWant,
		NumWantProvided: true,
		Left:            left,
		Downloaded:      downloaded,
		Uploaded:        uploaded,
		Peer: bittorrent.Peer{
			ID:   bittorrent.PeerIDFromBytes(peerID),
			IP:   bittorrent.IP{IP: ip},
			Port: port,
		},
		Params: params,
	}
	return req, nil
}

// parseScrape parses a ScrapeRequest out of a UDP scrape packet body: a
// flat list of 20-byte infohashes and nothing else.
func parseScrape(packet []byte) (*bittorrent.ScrapeRequest, error) {
	if len(packet)%20 != 0 || len(packet) == 0 {
		return nil, errMalformedPacket
	}

	infoHashes := make([]bittorrent.InfoHash, 0, len(packet)/20)
	for len(packet) >= 20 {
		infoHashes = append(infoHashes, bittorrent.InfoHashFromBytes(packet[:20]))
		packet = packet[20:]
	}
	return &bittorrent.ScrapeRequest{InfoHashes: infoHashes}, nil
}

// parseOptionalParameters walks the BEP-41 option-type/length/data triples
// trailing an announce packet and assembles them into a single URL-data
// string, reusing the query-string parser both frontends share.
func parseOptionalParameters(packet []byte) (bittorrent.Params, error) {
	if len(packet) == 0 {
		return bittorrent.NewQueryParams("")
	}

	var raw []byte
	for i := 0; i < len(packet); {
		switch packet[i] {
		case optionEndOfOptions:
			return bittorrent.NewQueryParams(string(raw))
		case optionNOP:
			i++
		case optionURLData:
			if i+1 >= len(packet) {
				return nil, errMalformedPacket
			}
			length := int(packet[i+1])
			if i+2+length > len(packet) {
				return nil, errMalformedPacket
			}
			raw = append(raw, packet[i+2:i+2+length]...)
			i += 2 + length
		default:
			return nil, errUnknownOptionType
		}
	}
	return bittorrent.NewQueryParams(string(raw))
}
