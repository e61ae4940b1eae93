package relay

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/internal/chaintest"
	"github.com/stretchr/testify/require"
)

const (
	// testGenesisHeight is the height the main network genesis header is
	// declared at in tests. It is the last height of an epoch so that the
	// bridge header starts a new one.
	testGenesisHeight = 503999

	// promoteStep is the number of headers the best tip advances by per
	// MarkNewHeaviest call when promoting a long chain.
	promoteStep = 150
)

// testEpochStart is the digest recorded for the genesis epoch start.
var testEpochStart = chainhash.Hash{0x01}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

// harness drives a relay with real headers and remembers where each header
// was stored.
type harness struct {
	t     testingT
	relay *Relay

	headers map[chainhash.Hash]wire.BlockHeader
	index   map[chainhash.Hash]uint32

	genesis wire.BlockHeader

	// bridge is the first header after genesis. It switches to the easy
	// test target and commits to proofTxs.
	bridge   wire.BlockHeader
	proofTxs []*wire.MsgTx
}

// newHarness creates a mainnet relay at the main network genesis header and
// makes a bridge header at the easy test target its best tip.
func newHarness(t testingT, opts ...Option) *harness {
	t.Helper()

	genesis := chaintest.MainNetGenesis()
	r, err := New(
		chaintest.Serialize(genesis), testGenesisHeight,
		testEpochStart, true, opts...,
	)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		relay:   r,
		headers: make(map[chainhash.Hash]wire.BlockHeader),
		index:   make(map[chainhash.Hash]uint32),
		genesis: genesis,
	}
	h.register(genesis, 1)

	for i := uint32(0); i < 4; i++ {
		h.proofTxs = append(h.proofTxs, chaintest.Tx(i))
	}
	_, root, err := btcspv.MerkleBranch(h.proofTxs, 0)
	require.NoError(t, err)

	h.bridge = chaintest.Next(
		&genesis, chaintest.EasyBits, chaintest.BaseTime, root,
	)
	require.NoError(t, h.addHeaders(genesis, []wire.BlockHeader{
		h.bridge,
	}, true))
	require.NoError(t, h.markHeaviest(genesis, h.bridge))

	return h
}

// newEpochHarness creates a harness whose best tip is the last header of
// the bridge header's epoch. The main chain headers after the bridge are
// spacing seconds apart and are returned.
func newEpochHarness(t testingT, spacing uint32) (*harness,
	[]wire.BlockHeader) {

	t.Helper()

	h := newHarness(t)
	main := h.extend(h.bridge, EpochLength-1, chaintest.EasyBits,
		spacing, 0)
	h.promote(main)

	return h, main
}

func (h *harness) register(header wire.BlockHeader, index uint32) {
	digest := header.BlockHash()
	h.headers[digest] = header
	h.index[digest] = index
}

func (h *harness) indexOf(header wire.BlockHeader) uint32 {
	h.t.Helper()

	index, ok := h.index[header.BlockHash()]
	require.True(h.t, ok, "unknown header %v", header.BlockHash())

	return index
}

func (h *harness) tip() wire.BlockHeader {
	h.t.Helper()

	header, ok := h.headers[h.relay.BestKnownDigest()]
	require.True(h.t, ok)

	return header
}

// snapshot returns the encoded relay.
func (h *harness) snapshot() []byte {
	h.t.Helper()

	var b bytes.Buffer
	require.NoError(h.t, h.relay.Encode(&b))

	return b.Bytes()
}

// addHeaders calls AddHeaders and remembers the indices of accepted headers.
func (h *harness) addHeaders(anchor wire.BlockHeader,
	headers []wire.BlockHeader, internal bool) error {

	next := h.relay.NextIndex()
	err := h.relay.AddHeaders(
		h.indexOf(anchor), chaintest.Serialize(anchor),
		chaintest.Serialize(headers...), internal,
	)
	if err != nil {
		return err
	}

	for i, header := range headers {
		h.register(header, next+uint32(i))
	}

	return nil
}

// addDifficultyChange calls AddDifficultyChange for an epoch ending in end
// and remembers the indices of accepted headers.
func (h *harness) addDifficultyChange(start, end wire.BlockHeader,
	headers []wire.BlockHeader) error {

	next := h.relay.NextIndex()
	err := h.relay.AddDifficultyChange(
		chaintest.Serialize(start), h.indexOf(end),
		chaintest.Serialize(end), chaintest.Serialize(headers...),
	)
	if err != nil {
		return err
	}

	for i, header := range headers {
		h.register(header, next+uint32(i))
	}

	return nil
}

// extend mines and adds n headers on top of parent.
func (h *harness) extend(parent wire.BlockHeader, n int, bits,
	spacing uint32, salt byte) []wire.BlockHeader {

	h.t.Helper()

	headers := chaintest.Extend(&parent, n, bits, spacing, salt)
	require.NoError(h.t, h.addHeaders(parent, headers, false))

	return headers
}

// markHeaviest proposes newBest with the given latest common ancestor.
func (h *harness) markHeaviest(lca, newBest wire.BlockHeader) error {
	h.t.Helper()

	return h.relay.MarkNewHeaviest(
		h.indexOf(lca), chaintest.Serialize(h.tip()),
		h.indexOf(newBest), chaintest.Serialize(newBest),
	)
}

// promote advances the best tip along chain, which must extend it.
func (h *harness) promote(chain []wire.BlockHeader) {
	h.t.Helper()

	lca := h.tip()
	for start := 0; start < len(chain); start += promoteStep {
		end := min(start+promoteStep, len(chain)) - 1

		require.NoError(h.t, h.markHeaviest(lca, chain[end]))
		lca = chain[end]
	}
}

// requireUnchanged runs op, expects it to fail with target and checks that
// the relay was not modified.
func (h *harness) requireUnchanged(target error, op func() error) {
	h.t.Helper()

	before := h.snapshot()
	require.ErrorIs(h.t, op(), target)
	require.Equal(h.t, before, h.snapshot())
}
