package access

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

const sampleHash = "0123456789abcdef0123456789abcdef01234567"

func TestDisabledListAllowsEverything(t *testing.T) {
	l := NewList(Disabled)
	assert.True(t, l.Allowed(bittorrent.InfoHash{}))
}

func TestWhitelist(t *testing.T) {
	l := NewList(Whitelist)
	hexHash := strings.Repeat("ab", 20)
	require.NoError(t, l.Load(strings.NewReader(hexHash+"\n# a comment\n\nnotHex\n")))

	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = 0xab
	}
	ih := bittorrent.InfoHashFromBytes(raw)

	assert.True(t, l.Allowed(ih))
	assert.False(t, l.Allowed(bittorrent.InfoHash{}))
	assert.EqualValues(t, 1, l.SkippedLines.Load())
}

func TestBlacklist(t *testing.T) {
	l := NewList(Blacklist)
	hexHash := strings.Repeat("cd", 20)
	require.NoError(t, l.Load(strings.NewReader(hexHash)))

	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = 0xcd
	}
	ih := bittorrent.InfoHashFromBytes(raw)

	assert.False(t, l.Allowed(ih))
	assert.True(t, l.Allowed(bittorrent.InfoHash{}))
}

func TestIPPermissions(t *testing.T) {
	p := NewIPPermissions()
	p.Grant("10.0.0.1", MayStat|Admin)

	assert.True(t, p.Check("10.0.0.1", MayStat))
	assert.True(t, p.Check("10.0.0.1", Admin))
	assert.False(t, p.Check("10.0.0.1", MayLiveSync))
	assert.False(t, p.Check("10.0.0.2", MayStat))

	p.Revoke("10.0.0.1")
	assert.False(t, p.Check("10.0.0.1", MayStat))
}
