// Package access implements the tracker's infohash allow/deny list and its
// per-IP permission bits (stat, proxy, live-sync, admin). The infohash list
// mirrors the shape of the teacher's middleware/torrentapproval (whitelist
// XOR blacklist, loaded from config) but is stored as a sorted slice behind
// an atomic pointer swap and binary-searched, per spec §4.B's explicit
// invariant, rather than the teacher's map.
package access

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/log"
)

// Mode selects whether the list grants or denies the infohashes it holds.
type Mode uint8

const (
	// Disabled means every infohash is permitted; no list is consulted.
	Disabled Mode = iota
	Whitelist
	Blacklist
)

// ErrUnapproved is returned when an infohash fails the access check.
var ErrUnapproved = bittorrent.ClientError("unapproved torrent")

type sortedHashes []bittorrent.InfoHash

func (s sortedHashes) Len() int           { return len(s) }
func (s sortedHashes) Less(i, j int) bool { return bytes.Compare(s[i][:], s[j][:]) < 0 }
func (s sortedHashes) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func (s sortedHashes) contains(ih bittorrent.InfoHash) bool {
	i := sort.Search(len(s), func(i int) bool { return bytes.Compare(s[i][:], ih[:]) >= 0 })
	return i < len(s) && s[i] == ih
}

// List is the infohash allow/deny set. The zero value is a Disabled list.
// All methods are safe for concurrent use; Reload atomically swaps the
// entire backing array so readers never observe a partial update.
type List struct {
	mode Mode
	set  atomic.Pointer[sortedHashes]

	// SkippedLines counts malformed lines tolerated during the most recent
	// Load, per spec §9's permissive-parsing open question.
	SkippedLines atomic.Uint64
}

// NewList creates a List in the given mode with an initially empty set.
func NewList(mode Mode) *List {
	l := &List{mode: mode}
	empty := sortedHashes{}
	l.set.Store(&empty)
	return l
}

// Mode reports whether the list is disabled, a whitelist, or a blacklist.
func (l *List) Mode() Mode { return l.mode }

// Allowed reports whether infohash ih may be announced/scraped.
func (l *List) Allowed(ih bittorrent.InfoHash) bool {
	switch l.mode {
	case Disabled:
		return true
	case Whitelist:
		return (*l.set.Load()).contains(ih)
	case Blacklist:
		return !(*l.set.Load()).contains(ih)
	default:
		return true
	}
}

// Load replaces the list's contents by parsing r as one hex-encoded
// infohash per line; '#' introduces a comment and blank lines are ignored,
// per spec §6's accesslist file format. Malformed lines are skipped and
// counted rather than treated as fatal, preserving the source's permissive
// behavior (spec §9).
func (l *List) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	hashes := make(sortedHashes, 0, 1024)
	var skipped uint64

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if i := bytes.IndexByte(line, '#'); i >= 0 {
			line = bytes.TrimSpace(line[:i])
			if len(line) == 0 {
				continue
			}
		}

		raw := make([]byte, hex.DecodedLen(len(line)))
		n, err := hex.Decode(raw, line)
		if err != nil || n != 20 {
			skipped++
			log.Warn("access: skipping malformed accesslist line", log.Fields{"line": string(line)})
			continue
		}

		hashes = append(hashes, bittorrent.InfoHashFromBytes(raw[:20]))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("access: reading accesslist: %w", err)
	}

	sort.Sort(hashes)
	l.set.Store(&hashes)
	l.SkippedLines.Store(skipped)
	return nil
}

// Len reports the number of infohashes currently held.
func (l *List) Len() int { return len(*l.set.Load()) }
