// Package livesync fans announce deltas out to the other tracker instances
// in a cluster over UDP multicast, and folds deltas received from them back
// into the local peer store. The command-byte-then-gob-struct framing is
// grounded on the teacher's storage/cluster delegate (CmdPutSeeder and
// friends), re-targeted from memberlist's reliable TCP gossip transport to
// a connectionless multicast one, since the spec calls for best-effort
// fan-out rather than strongly consistent membership (DESIGN.md explains
// why memberlist itself was dropped).
package livesync

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

// cmd identifies the payload type following it in a record, mirroring
// storage/cluster's Cmd* constants.
type cmd uint8

const (
	cmdPutPeer cmd = 1
	cmdDelPeer cmd = 2
)

// peerDelta is the payload for both cmdPutPeer and cmdDelPeer; the command
// byte alone distinguishes an upsert from a removal.
type peerDelta struct {
	TrackerID string
	InfoHash  bittorrent.InfoHash
	Peer      bittorrent.Peer
	Seeder    bool
}

// encodeRecord frames one delta as [cmd byte][gob-encoded peerDelta].
func encodeRecord(c cmd, d peerDelta) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(c))
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("livesync: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeRecord parses one record, as cut out of a datagram by
// Syncer.applyDatagram, back into a command and delta. A datagram carries
// several length-prefixed records (Syncer.enqueue); a record that fails to
// decode costs only that delta, and a truncated length prefix drops the rest
// of its datagram (spec §9: live-sync is best-effort, never allowed to stall
// or poison the receiver's state).
func decodeRecord(raw []byte) (cmd, peerDelta, error) {
	if len(raw) < 1 {
		return 0, peerDelta{}, fmt.Errorf("livesync: empty record")
	}
	c := cmd(raw[0])
	var d peerDelta
	if err := gob.NewDecoder(bytes.NewReader(raw[1:])).Decode(&d); err != nil {
		return 0, peerDelta{}, fmt.Errorf("livesync: decode: %w", err)
	}
	return c, d, nil
}
