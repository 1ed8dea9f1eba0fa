package http

import (
	"net"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// parseAnnounce builds an AnnounceRequest from a parsed HTTP request,
// adapted from the teacher's ParseAnnounce (which works against an
// *http.Request) to our hand-rolled request type. trustForwardedFor says
// whether to trust X-Forwarded-For (the server sets it only for callers
// holding spec §4.B's MayProxy bit); allowIPSpoofing says whether to trust
// an explicit ip/ipv4/ipv6 query parameter and comes from
// Config.AllowIPSpoofing, independent of MayProxy.
func parseAnnounce(r *request, trustForwardedFor, allowIPSpoofing bool) (*bittorrent.AnnounceRequest, error) {
	qp, err := bittorrent.NewQueryParams(r.RawQuery)
	if err != nil {
		return nil, err
	}

	req := &bittorrent.AnnounceRequest{Params: qp}

	eventStr, _ := qp.String("event")
	req.Event, err = bittorrent.NewEvent(eventStr)
	if err != nil {
		return nil, bittorrent.ClientError("failed to provide valid client event")
	}

	compactStr, _ := qp.String("compact")
	req.Compact = compactStr == "" || compactStr == "1"

	infoHashes := qp.InfoHashes()
	if len(infoHashes) < 1 {
		return nil, bittorrent.ClientError("no info_hash parameter supplied")
	}
	if len(infoHashes) > 1 {
		return nil, bittorrent.ClientError("multiple info_hash parameters supplied")
	}
	req.InfoHash = infoHashes[0]

	peerID, ok := qp.String("peer_id")
	if !ok || len(peerID) != 20 {
		return nil, bittorrent.ClientError("failed to provide valid peer_id")
	}
	req.Peer.ID = bittorrent.PeerIDFromBytes([]byte(peerID))

	req.Left, err = qp.Uint64("left")
	if err != nil {
		return nil, bittorrent.ClientError("failed to parse parameter: left")
	}
	req.Downloaded, _ = qp.Uint64("downloaded")
	req.Uploaded, _ = qp.Uint64("uploaded")

	if numwant, err := qp.Uint64("numwant"); err == nil {
		req.NumWant = uint32(numwant)
		req.NumWantProvided = true
	}

	port, err := qp.Uint64("port")
	if err != nil {
		return nil, bittorrent.ClientError("failed to parse parameter: port")
	}
	req.Peer.Port = uint16(port)

	ip := requestedIP(r, qp, trustForwardedFor, allowIPSpoofing)
	if ip == nil {
		return nil, bittorrent.ClientError("failed to parse peer IP address")
	}
	req.Peer.IP = bittorrent.IP{IP: ip}

	return req, nil
}

// parseScrape builds a ScrapeRequest from a parsed HTTP request.
func parseScrape(r *request) (*bittorrent.ScrapeRequest, error) {
	qp, err := bittorrent.NewQueryParams(r.RawQuery)
	if err != nil {
		return nil, err
	}
	infoHashes := qp.InfoHashes()
	if len(infoHashes) < 1 {
		return nil, bittorrent.ClientError("no info_hash parameter supplied")
	}
	return &bittorrent.ScrapeRequest{InfoHashes: infoHashes, Params: qp}, nil
}

// requestedIP determines the peer's address: an explicit ip/ipv4/ipv6 query
// parameter if spoofing is allowed, else X-Forwarded-For if trusted, else
// the TCP connection's own remote address.
func requestedIP(r *request, p bittorrent.Params, trustForwardedFor, allowIPSpoofing bool) net.IP {
	if allowIPSpoofing {
		for _, key := range [...]string{"ip", "ipv4", "ipv6"} {
			if ipstr, ok := p.String(key); ok {
				if ip := net.ParseIP(ipstr); ip != nil {
					return ip
				}
			}
		}
	}

	if trustForwardedFor && r.ForwardedFor != "" {
		if ip := net.ParseIP(r.ForwardedFor); ip != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
