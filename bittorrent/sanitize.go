package bittorrent

import (
	"net"

	"github.com/swarmkeep/swarmkeep/pkg/log"
)

// RequestSanitizer clamps unreasonable values out of a parsed request
// before it reaches the store, the same role the teacher's
// RequestSanitizer plays ahead of its storage layer.
type RequestSanitizer struct {
	MaxNumWant          uint32 `yaml:"max_numwant"`
	DefaultNumWant      uint32 `yaml:"default_numwant"`
	MaxScrapeInfoHashes uint32 `yaml:"max_scrape_infohashes"`
}

// SanitizeAnnounce enforces NumWant bounds and classifies the peer's
// address family.
func (rs *RequestSanitizer) SanitizeAnnounce(r *AnnounceRequest) error {
	if !r.NumWantProvided {
		r.NumWant = rs.DefaultNumWant
	} else if r.NumWant > rs.MaxNumWant {
		r.NumWant = rs.MaxNumWant
	}

	if ip := r.Peer.IP.To4(); ip != nil {
		r.Peer.IP.IP = ip
		r.Peer.IP.AddressFamily = IPv4
	} else if len(r.Peer.IP.IP) == net.IPv6len {
		r.Peer.IP.AddressFamily = IPv6
	} else {
		return ErrInvalidIP
	}

	log.Debug("sanitized announce", log.Fields{"infohash": r.InfoHash, "numwant": r.NumWant})
	return nil
}

// SanitizeScrape caps the number of infohashes a single scrape may request.
func (rs *RequestSanitizer) SanitizeScrape(r *ScrapeRequest) error {
	if len(r.InfoHashes) > int(rs.MaxScrapeInfoHashes) {
		r.InfoHashes = r.InfoHashes[:rs.MaxScrapeInfoHashes]
	}
	return nil
}

// LogFields renders the sanitizer's configuration for structured logging.
func (rs *RequestSanitizer) LogFields() log.Fields {
	return log.Fields{
		"maxNumWant":          rs.MaxNumWant,
		"defaultNumWant":      rs.DefaultNumWant,
		"maxScrapeInfohashes": rs.MaxScrapeInfoHashes,
	}
}
