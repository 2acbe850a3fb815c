// Package decoy implements the deterministic decoy mapping Psi: given a
// round timestamp and a size k, it deterministically generates k "from"
// node IDs and k "to" node IDs from disjoint negative-ID ranges, paired
// index-for-index into k decoy edges, so that real queries and committed
// state can be padded with decoys indistinguishable in shape from genuine
// graph elements without either party needing to exchange extra state —
// both sides derive the same decoy set from the same (ts, k) pair.
package decoy

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"

	"github.com/certen/graphverify/pkg/graphmodel"
)

// fromIDFloor and toIDOffset mirror the reference mapping's offset scheme:
// "from" IDs start at fromIDFloor plus a timestamp-derived base, "to" IDs
// start toIDOffset further out, keeping the two pools disjoint from each
// other and from the small positive IDs real graphs use, while remaining
// fully reproducible from (ts, k) alone.
const (
	fromIDFloor = 10000
	fromIDRange = 1000000
	toIDOffset  = 100000
)

func seedFromTimestamp(ts string) int64 {
	sum := sha256.Sum256([]byte(ts))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Generate deterministically derives a size-k decoy set from ts: k distinct
// "from" node IDs and k distinct "to" node IDs, each pool independently
// shuffled and then paired index-for-index (a stable round-robin over both
// lists) into k decoy edges. Calling Generate twice with the same ts and k
// always yields the identical set, which is what lets a verifier
// reconstruct the same decoys an outsourced party used without any side
// channel.
func Generate(ts string, k int) (nodes []graphmodel.Element, edges []graphmodel.Element) {
	if k <= 0 {
		return nil, nil
	}

	seed := seedFromTimestamp(ts)
	base := (seed%fromIDRange+fromIDRange)%fromIDRange + fromIDFloor

	fromIDs := make([]int64, k)
	toIDs := make([]int64, k)
	for i := 0; i < k; i++ {
		fromIDs[i] = -(base + int64(i))
		toIDs[i] = -(base + toIDOffset + int64(i))
	}

	fromRng := rand.New(rand.NewSource(seed))
	toRng := rand.New(rand.NewSource(seed ^ int64(toIDOffset)))
	fromRng.Shuffle(k, func(i, j int) { fromIDs[i], fromIDs[j] = fromIDs[j], fromIDs[i] })
	toRng.Shuffle(k, func(i, j int) { toIDs[i], toIDs[j] = toIDs[j], toIDs[i] })

	nodes = make([]graphmodel.Element, 0, 2*k)
	for _, id := range fromIDs {
		nodes = append(nodes, graphmodel.NewNode(id))
	}
	for _, id := range toIDs {
		nodes = append(nodes, graphmodel.NewNode(id))
	}

	edges = make([]graphmodel.Element, k)
	for i := 0; i < k; i++ {
		edges[i] = graphmodel.NewEdge(fromIDs[i], toIDs[i])
	}

	return nodes, edges
}
