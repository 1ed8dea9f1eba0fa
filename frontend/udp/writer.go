package udp

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// writeError encodes a BEP-15 error response: an error action header
// followed by the message as a raw (non-terminated) string, matching the
// teacher's WriteError but without the C-string NUL terminator BEP-15
// itself never specifies.
func writeError(w io.Writer, txID []byte, err error) {
	message := "internal error occurred"
	var clientErr bittorrent.ClientError
	if ce, ok := err.(bittorrent.ClientError); ok {
		clientErr = ce
		message = clientErr.Error()
	}

	var buf bytes.Buffer
	writeHeader(&buf, txID, errorActionID)
	buf.WriteString(message)
	w.Write(buf.Bytes())
}

// writeAnnounce encodes an announce response per BEP-15: interval,
// leecher/seeder counts, then one compact 6-byte IPv4 peer entry each.
// BEP-15 has no IPv6 peer list; an IPv6-peered swarm is simply omitted from
// a v4 announce, same as the teacher's frontend.
func writeAnnounce(w io.Writer, txID []byte, resp *bittorrent.AnnounceResponse) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, announceActionID)
	binary.Write(&buf, binary.BigEndian, uint32(resp.Interval/time.Second))
	binary.Write(&buf, binary.BigEndian, uint32(resp.Incomplete))
	binary.Write(&buf, binary.BigEndian, uint32(resp.Complete))

	for _, peer := range resp.IPv4Peers {
		buf.Write(peer.IP.IP.To4())
		binary.Write(&buf, binary.BigEndian, peer.Port)
	}

	w.Write(buf.Bytes())
}

// writeScrape encodes a scrape response per BEP-15: one
// seeders/completed/leechers triple per requested infohash, in request
// order.
func writeScrape(w io.Writer, txID []byte, resp *bittorrent.ScrapeResponse) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, scrapeActionID)
	for _, sc := range resp.Files {
		binary.Write(&buf, binary.BigEndian, sc.Complete)
		binary.Write(&buf, binary.BigEndian, sc.Downloaded)
		binary.Write(&buf, binary.BigEndian, sc.Incomplete)
	}

	w.Write(buf.Bytes())
}

// writeConnectionID encodes a connect response: the freshly minted
// connection ID a client must echo back on its next announce/scrape.
func writeConnectionID(w io.Writer, txID, connID []byte) {
	var buf bytes.Buffer
	writeHeader(&buf, txID, connectActionID)
	buf.Write(connID)
	w.Write(buf.Bytes())
}

func writeHeader(w io.Writer, txID []byte, action uint32) {
	binary.Write(w, binary.BigEndian, action)
	w.Write(txID)
}
