package storage

import "math/rand/v2"

// reservoirSample picks up to k elements of all uniformly at random in a
// single pass, per spec §4.C's requirement that large swarms not always
// return the same numwant peers to every requester. For k >= len(all) it
// just returns a copy of all.
func reservoirSample(all []peerRecord, k int) []peerRecord {
	if k >= len(all) {
		out := make([]peerRecord, len(all))
		copy(out, all)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	out := make([]peerRecord, k)
	copy(out, all[:k])
	for i := k; i < len(all); i++ {
		j := rand.IntN(i + 1)
		if j < k {
			out[j] = all[i]
		}
	}
	return out
}

// splitByRole separates peers into seeders and leechers, used to bias
// ReturnPeers toward giving leechers seeds first (spec §4.C).
func splitByRole(all []peerRecord) (seeders, leechers []peerRecord) {
	for _, r := range all {
		if r.flags&flagSeeder != 0 {
			seeders = append(seeders, r)
		} else {
			leechers = append(leechers, r)
		}
	}
	return
}
