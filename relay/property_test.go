package relay

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/spvrelay/internal/chaintest"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRelayProperties applies random extensions and tip proposals and checks
// that failed calls leave the relay untouched, successful proposals raise the
// tip, and the best chain stays linked.
func TestRelayProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(rt)
		known := []wire.BlockHeader{h.genesis, h.bridge}

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			pick := func(label string) wire.BlockHeader {
				idx := rapid.IntRange(0, len(known)-1).Draw(
					rt, label,
				)
				return known[idx]
			}

			if rapid.Bool().Draw(rt, "extend") {
				parent := pick("parent")
				if parent.Bits != chaintest.EasyBits {
					continue
				}

				n := rapid.IntRange(1, 4).Draw(rt, "n")
				salt := rapid.Byte().Draw(rt, "salt")
				headers := h.extend(
					parent, n, chaintest.EasyBits, 600,
					salt,
				)
				known = append(known, headers...)

				continue
			}

			lca := pick("lca")
			newBest := pick("newBest")

			before := h.snapshot()
			oldTip := h.relay.Tip()

			err := h.markHeaviest(lca, newBest)
			if err != nil {
				require.Equal(rt, before, h.snapshot())
				continue
			}

			newTip := h.relay.Tip()
			require.Equal(rt, newBest.BlockHash(), newTip.Digest)
			require.Greater(rt, newTip.Height, oldTip.Height)
			require.Equal(rt, lca.BlockHash(), h.relay.LastReorgLCA())
		}

		// The best chain links back to genesis one height at a time.
		current := h.relay.Tip()
		for !current.IsBootstrap() {
			parent, err := h.relay.Header(current.ParentIndex)
			require.NoError(rt, err)
			require.Equal(rt, current.Height-1, parent.Height)
			current = parent
		}
		require.Equal(rt, h.relay.GenesisDigest(), current.Digest)

		// The snapshot round trips at every point.
		var b bytes.Buffer
		require.NoError(rt, h.relay.Encode(&b))
		decoded, err := Decode(&b)
		require.NoError(rt, err)
		require.Equal(rt, h.relay, decoded)
	})
}
