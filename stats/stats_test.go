package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordEventIncrementsCounters(t *testing.T) {
	s := New(false)
	s.RecordEvent(Announce)
	s.RecordEvent(Announce)
	s.RecordEvent(Scrape)
	s.RecordEvent(Completed)

	snap := s.Snapshot(TorrentGauges{}, false)
	assert.EqualValues(t, 2, snap.Announces)
	assert.EqualValues(t, 1, snap.Scrapes)
	assert.EqualValues(t, 1, snap.Completed)
}

func TestRecordEventUnknownPanics(t *testing.T) {
	s := New(false)
	assert.Panics(t, func() { s.RecordEvent(Event(999)) })
}

func TestSnapshotIncludesGauges(t *testing.T) {
	s := New(false)
	snap := s.Snapshot(TorrentGauges{Torrents: 3, Seeders: 5, Leechers: 7}, false)
	assert.EqualValues(t, 3, snap.Torrents)
	assert.EqualValues(t, 5, snap.Seeders)
	assert.EqualValues(t, 7, snap.Leechers)
}

func TestSnapshotMemOnlyWhenRequested(t *testing.T) {
	s := New(false)
	assert.Nil(t, s.Snapshot(TorrentGauges{}, false).Mem)
	assert.NotNil(t, s.Snapshot(TorrentGauges{}, true).Mem)
}

func TestRecordAnnounceLatencyMovesPercentiles(t *testing.T) {
	s := New(false)
	for i := 0; i < 10; i++ {
		s.RecordAnnounceLatency(time.Duration(i+1) * time.Millisecond)
	}
	snap := s.Snapshot(TorrentGauges{}, false)
	assert.Greater(t, snap.AnnounceLatencyP99Ms, snap.AnnounceLatencyP50Ms-1e-9)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeBencode, ParseMode("bencode"))
	assert.Equal(t, ModeBencode, ParseMode("BENCODE"))
	assert.Equal(t, ModePlain, ParseMode("anything-else"))
}

func TestRenderPlainContainsCounters(t *testing.T) {
	s := New(false)
	s.RecordEvent(Announce)
	out := string(Render(s.Snapshot(TorrentGauges{Torrents: 1}, false), ModePlain))
	assert.True(t, strings.Contains(out, "announces: 1"))
	assert.True(t, strings.Contains(out, "torrents: 1"))
}

func TestRenderBencodeProducesDict(t *testing.T) {
	s := New(false)
	s.RecordEvent(Scrape)
	out := Render(s.Snapshot(TorrentGauges{}, false), ModeBencode)
	assert.True(t, strings.HasPrefix(string(out), "d"))
	assert.True(t, strings.Contains(string(out), "scrapes"))
}
