package client

import (
	"math/rand"

	"github.com/portmapper/pcpclient/internal/wire"
)

// generateNonce returns a fresh request nonce whose first byte carries the
// low 8 bits of the mapping table slot it belongs to, with the remaining 11
// bytes drawn from rng. Folding the slot index in lets a misrouted or
// duplicated response be traced back to roughly the right record even
// before the full nonce comparison runs.
func generateNonce(rng *rand.Rand, id int) wire.Nonce {
	var n wire.Nonce
	n[0] = byte(id)
	for i := 1; i < len(n); i++ {
		n[i] = byte(rng.Intn(256))
	}
	return n
}
