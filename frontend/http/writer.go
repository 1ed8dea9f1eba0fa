package http

import (
	"errors"
	"io"

	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/bittorrent/bencode"
)

const (
	compact4PeerLen = 4 + 2  // IPv4 + Port
	compact6PeerLen = 16 + 2 // IPv6 + Port
)

// writeError communicates an error to a BitTorrent client over HTTP,
// relaying a ClientError's message verbatim and masking anything else.
func writeError(w io.Writer, err error) error {
	message := "internal server error"
	var clientErr bittorrent.ClientError
	if errors.As(err, &clientErr) {
		message = clientErr.Error()
	}
	return bencode.NewEncoder(w).Encode(bencode.Dict{"failure reason": message})
}

// writeAnnounceResponse bencodes an AnnounceResponse, compact or
// dictionary-style peers depending on what the client asked for.
func writeAnnounceResponse(w io.Writer, resp *bittorrent.AnnounceResponse) error {
	bdict := bencode.Dict{
		"complete":     resp.Complete,
		"incomplete":   resp.Incomplete,
		"interval":     int64(resp.Interval.Seconds()),
		"min interval": int64(resp.MinInterval.Seconds()),
	}

	if resp.Compact {
		ipv4 := make([]byte, 0, compact4PeerLen*len(resp.IPv4Peers))
		for _, peer := range resp.IPv4Peers {
			ipv4 = append(ipv4, compact4(peer)...)
		}
		if len(ipv4) > 0 {
			bdict["peers"] = ipv4
		}

		ipv6 := make([]byte, 0, compact6PeerLen*len(resp.IPv6Peers))
		for _, peer := range resp.IPv6Peers {
			ipv6 = append(ipv6, compact6(peer)...)
		}
		if len(ipv6) > 0 {
			bdict["peers6"] = ipv6
		}
		return bencode.NewEncoder(w).Encode(bdict)
	}

	peers := make(bencode.List, 0, len(resp.IPv4Peers)+len(resp.IPv6Peers))
	for _, peer := range resp.IPv4Peers {
		peers = append(peers, dict(peer))
	}
	for _, peer := range resp.IPv6Peers {
		peers = append(peers, dict(peer))
	}
	bdict["peers"] = peers
	return bencode.NewEncoder(w).Encode(bdict)
}

// writeScrapeResponse bencodes a ScrapeResponse as a "files" dict keyed by
// raw 20-byte infohash, per BEP-48.
func writeScrapeResponse(w io.Writer, resp *bittorrent.ScrapeResponse) error {
	files := bencode.NewDict()
	for _, sc := range resp.Files {
		files[string(sc.InfoHash[:])] = bencode.Dict{
			"complete":   sc.Complete,
			"incomplete": sc.Incomplete,
			"downloaded": sc.Downloaded,
		}
	}
	return bencode.NewEncoder(w).Encode(bencode.Dict{"files": files})
}

func compact4(peer bittorrent.Peer) []byte {
	buf := make([]byte, 0, compact4PeerLen)
	buf = append(buf, peer.IP.IP.To4()...)
	buf = append(buf, byte(peer.Port>>8), byte(peer.Port&0xff))
	return buf
}

func compact6(peer bittorrent.Peer) []byte {
	buf := make([]byte, 0, compact6PeerLen)
	buf = append(buf, peer.IP.IP.To16()...)
	buf = append(buf, byte(peer.Port>>8), byte(peer.Port&0xff))
	return buf
}

func dict(peer bittorrent.Peer) bencode.Dict {
	return bencode.Dict{
		"peer id": string(peer.ID[:]),
		"ip":      peer.IP.IP.String(),
		"port":    peer.Port,
	}
}
