package stats

import (
	"fmt"
	"strings"

	"github.com/swarmkeep/swarmkeep/bittorrent/bencode"
)

// Mode selects the /stats response format a requester asked for via the
// mode query parameter, mirroring original_source/opentracker.c's
// access.stats_path / mode=... handling.
type Mode string

const (
	ModePlain   Mode = "plain"
	ModeBencode Mode = "bencode"
)

// ParseMode maps a raw mode string onto a supported Mode, defaulting to
// ModePlain for anything unrecognized rather than erroring, matching the
// permissive query parsing used elsewhere in the tracker (spec §9).
func ParseMode(raw string) Mode {
	if Mode(strings.ToLower(raw)) == ModeBencode {
		return ModeBencode
	}
	return ModePlain
}

// Render formats a Snapshot for the /stats endpoint (spec §4.D), in either
// a human-readable key: value form or a bencoded dict for programmatic
// scraping.
func Render(snap Snapshot, mode Mode) []byte {
	if mode == ModeBencode {
		return renderBencode(snap)
	}
	return renderPlain(snap)
}

func renderPlain(snap Snapshot) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "uptime: %ds\n", snap.UptimeSeconds)
	fmt.Fprintf(&b, "torrents: %d\n", snap.Torrents)
	fmt.Fprintf(&b, "seeders: %d\n", snap.Seeders)
	fmt.Fprintf(&b, "leechers: %d\n", snap.Leechers)
	fmt.Fprintf(&b, "announces: %d\n", snap.Announces)
	fmt.Fprintf(&b, "scrapes: %d\n", snap.Scrapes)
	fmt.Fprintf(&b, "completed: %d\n", snap.Completed)
	fmt.Fprintf(&b, "udp_connects: %d\n", snap.ConnectsUDP)
	fmt.Fprintf(&b, "bad_requests: %d\n", snap.BadRequests)
	fmt.Fprintf(&b, "unapproved: %d\n", snap.Unapproved)
	fmt.Fprintf(&b, "conn_id_rejected: %d\n", snap.ConnIDRejected)
	fmt.Fprintf(&b, "announce_latency_p50_ms: %.3f\n", snap.AnnounceLatencyP50Ms)
	fmt.Fprintf(&b, "announce_latency_p99_ms: %.3f\n", snap.AnnounceLatencyP99Ms)
	if snap.Mem != nil {
		fmt.Fprintf(&b, "mem_alloc: %d\n", snap.Mem.full.Alloc)
	}
	return []byte(b.String())
}

func renderBencode(snap Snapshot) []byte {
	d := bencode.NewDict()
	d["uptime"] = snap.UptimeSeconds
	d["torrents"] = snap.Torrents
	d["seeders"] = int64(snap.Seeders)
	d["leechers"] = int64(snap.Leechers)
	d["announces"] = int64(snap.Announces)
	d["scrapes"] = int64(snap.Scrapes)
	d["completed"] = int64(snap.Completed)
	d["udp connects"] = int64(snap.ConnectsUDP)
	d["bad requests"] = int64(snap.BadRequests)
	d["unapproved"] = int64(snap.Unapproved)
	d["conn id rejected"] = int64(snap.ConnIDRejected)

	out, err := bencode.Marshal(d)
	if err != nil {
		// Every value above is a type the encoder supports; a failure here
		// means the Dict itself was built wrong, which is a programming
		// error worth surfacing loudly rather than serving a truncated body.
		panic("stats: bencode render: " + err.Error())
	}
	return out
}
