package strategy

import (
	"hash/fnv"
	"math/rand"
)

// seededRand derives a deterministic *rand.Rand from the
// OPENCODE_REPLAY_SEED string (§5 "Replay-determinism requirement": "all
// pseudo-random choices within the Strategy Orchestrator use a PRNG seeded
// from that value"). The seed string is hashed rather than parsed as an
// integer so operators can use any memorable token as the seed.
func seededRand(seed string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
