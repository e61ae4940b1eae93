package relaydb

import (
	"fmt"
	"math"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/headerstore"
	"github.com/lightninglabs/spvrelay/internal/chaintest"
	"github.com/lightninglabs/spvrelay/relay"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/stretchr/testify/require"
)

var (
	genesisRaw = chaintest.Serialize(chaintest.MainNetGenesis())
	block1Raw  = chaintest.Serialize(chaintest.MainNetBlock1())
)

// newTestDB returns a DB on a fresh bolt backend.
func newTestDB(t *testing.T, modifiers ...OptionModifier) *DB {
	t.Helper()

	backend, cleanup, err := kvdb.GetTestBackend(t.TempDir(), "relaydb")
	require.NoError(t, err)
	t.Cleanup(cleanup)

	db, err := New(backend, modifiers...)
	require.NoError(t, err)

	return db
}

// initInstr starts a mainnet relay at the main network genesis block.
func initInstr() *Initialize {
	genesis := chaintest.MainNetGenesis()

	return &Initialize{
		Genesis:    genesisRaw,
		Height:     0,
		EpochStart: genesis.BlockHash(),
		Mainnet:    true,
		Capacity:   16,
	}
}

// stateBytes returns the encoded stored state.
func stateBytes(t *testing.T, db *DB) []byte {
	t.Helper()

	state, err := db.FetchState()
	require.NoError(t, err)

	b, err := state.Bytes()
	require.NoError(t, err)

	return b
}

// TestProcessLifecycle drives a relay from initialization to a proof about
// main network block 1.
func TestProcessLifecycle(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	state, err := db.FetchState()
	require.NoError(t, err)
	require.Equal(t, KindUninitialized, state.Kind())

	_, err = db.FetchRelay()
	require.ErrorIs(t, err, ErrNotYetInit)

	err = db.Process(&AddHeaders{
		AnchorIndex: 1,
		Anchor:      genesisRaw,
		Headers:     block1Raw,
	})
	require.ErrorIs(t, err, ErrNotYetInit)
	require.Equal(t, CodeNotYetInit, CodeOf(err))

	require.NoError(t, db.Process(initInstr()))
	require.ErrorIs(t, db.Process(initInstr()), ErrAlreadyInit)

	r, err := db.FetchRelay()
	require.NoError(t, err)
	require.Equal(t, 16, r.Capacity())
	require.True(t, r.Mainnet())

	require.NoError(t, db.Process(&AddHeaders{
		AnchorIndex: 1,
		Anchor:      genesisRaw,
		Headers:     block1Raw,
	}))
	require.NoError(t, db.Process(&MarkNewHeaviest{
		LCAIndex:     1,
		CurrentBest:  genesisRaw,
		NewBestIndex: 2,
		NewBest:      block1Raw,
	}))

	r, err = db.FetchRelay()
	require.NoError(t, err)

	block1 := chaintest.MainNetBlock1()
	require.Equal(t, block1.BlockHash(), r.BestKnownDigest())
	require.EqualValues(t, 2, r.CurrentBestIndex())
	require.EqualValues(t, 1, r.Tip().Height)

	coinbase := chaintest.MainNetBlock1Coinbase()
	proof := &btcspv.Proof{
		Tx:   chaintest.SerializeTx(coinbase),
		TxID: coinbase.TxHash(),
		ConfirmingHeader: btcspv.ProofHeader{
			Raw:        block1Raw,
			Hash:       block1.BlockHash(),
			Height:     1,
			PrevHash:   block1.PrevBlock,
			MerkleRoot: block1.MerkleRoot,
		},
	}
	confs, err := db.ValidateProof(2, proof)
	require.NoError(t, err)
	require.EqualValues(t, 1, confs)

	// The genesis block is not the confirming header of the proof.
	_, err = db.ValidateProof(1, proof)
	require.ErrorIs(t, err, btcspv.ErrWrongDigest)
	require.Equal(t, CodeWrongDigest, CodeOf(err))
}

// block1Proof returns a proof of the block 1 coinbase.
func block1Proof() *btcspv.Proof {
	block1 := chaintest.MainNetBlock1()
	coinbase := chaintest.MainNetBlock1Coinbase()

	return &btcspv.Proof{
		Tx:   chaintest.SerializeTx(coinbase),
		TxID: coinbase.TxHash(),
		ConfirmingHeader: btcspv.ProofHeader{
			Raw:        block1Raw,
			Hash:       block1.BlockHash(),
			Height:     1,
			PrevHash:   block1.PrevBlock,
			MerkleRoot: block1.MerkleRoot,
		},
	}
}

// TestProofRequests opens and closes requests and checks proofs of the
// block 1 coinbase against them.
func TestProofRequests(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	reqs, err := db.FetchRequests()
	require.NoError(t, err)
	require.Empty(t, reqs)

	// The coinbase spends the null outpoint.
	nullOutPoint := SerializeOutPoint(wire.OutPoint{Index: math.MaxUint32})
	otherOutPoint := SerializeOutPoint(wire.OutPoint{Index: 0})

	id, err := db.OpenRequest(&OpenRequest{
		Spends:   nullOutPoint,
		NumConfs: 1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	deep, err := db.OpenRequest(&OpenRequest{
		Spends:   nullOutPoint,
		NumConfs: 2,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, deep)

	other, err := db.OpenRequest(&OpenRequest{
		Spends:   otherOutPoint,
		NumConfs: 1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, other)

	// Rejected requests do not use up an id.
	_, err = db.OpenRequest(&OpenRequest{Spends: nullOutPoint[:4]})
	require.ErrorIs(t, err, ErrSpendsLength)
	require.Equal(t, CodeSpendsLength, CodeOf(err))

	reqs, err = db.FetchRequests()
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		require.EqualValues(t, i+1, req.ID)
		require.True(t, req.Active)
		require.False(t, req.HasPays())
	}

	// Proofs need a relay.
	_, err = db.ProvideProof(id, 2, block1Proof(), 0, 0)
	require.ErrorIs(t, err, ErrNotYetInit)

	require.NoError(t, db.Process(initInstr()))
	require.NoError(t, db.Process(&AddHeaders{
		AnchorIndex: 1,
		Anchor:      genesisRaw,
		Headers:     block1Raw,
	}))
	require.NoError(t, db.Process(&MarkNewHeaviest{
		LCAIndex:     1,
		CurrentBest:  genesisRaw,
		NewBestIndex: 2,
		NewBest:      block1Raw,
	}))

	confs, err := db.ProvideProof(id, 2, block1Proof(), 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, confs)

	_, err = db.ProvideProof(deep, 2, block1Proof(), 0, 0)
	require.ErrorIs(t, err, ErrNotEnoughConfs)
	require.Equal(t, CodeNotEnoughConfs, CodeOf(err))

	_, err = db.ProvideProof(other, 2, block1Proof(), 0, 0)
	require.ErrorIs(t, err, ErrRequestSpends)

	_, err = db.ProvideProof(id, 2, block1Proof(), 1, 0)
	require.ErrorIs(t, err, ErrInvalidVin)

	_, err = db.ProvideProof(id, 1, block1Proof(), 0, 0)
	require.ErrorIs(t, err, btcspv.ErrWrongDigest)

	_, err = db.ProvideProof(9, 2, block1Proof(), 0, 0)
	require.ErrorIs(t, err, ErrUnknownRequest)
	require.Equal(t, CodeUnknownRequest, CodeOf(err))

	// Closing keeps the request but rejects later proofs.
	require.NoError(t, db.Process(&CloseRequest{ID: uint64(id)}))
	err = db.Process(&CloseRequest{ID: uint64(id)})
	require.ErrorIs(t, err, ErrClosedRequest)
	require.ErrorIs(t, db.Process(&CloseRequest{ID: 9}), ErrUnknownRequest)

	req, err := db.FetchRequest(id)
	require.NoError(t, err)
	require.False(t, req.Active)
	require.EqualValues(t, 1, req.NumConfs)

	_, err = db.ProvideProof(id, 2, block1Proof(), 0, 0)
	require.ErrorIs(t, err, ErrClosedRequest)

	// Request instructions leave the relay untouched.
	r, err := db.FetchRelay()
	require.NoError(t, err)
	require.EqualValues(t, 2, r.CurrentBestIndex())
}

// TestProcessFailureKeepsState checks that rejected instructions do not
// modify the stored state.
func TestProcessFailureKeepsState(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, db.Process(initInstr()))

	tests := []struct {
		name  string
		instr Instruction
		err   error
	}{
		{
			name: "unknown anchor",
			instr: &AddHeaders{
				AnchorIndex: 7,
				Anchor:      genesisRaw,
				Headers:     block1Raw,
			},
			err: headerstore.ErrUnknownIndex,
		},
		{
			name: "wrong anchor bytes",
			instr: &AddHeaders{
				AnchorIndex: 1,
				Anchor:      block1Raw,
				Headers:     block1Raw,
			},
			err: btcspv.ErrWrongDigest,
		},
		{
			name: "empty headers",
			instr: &AddHeaders{
				AnchorIndex: 1,
				Anchor:      genesisRaw,
			},
			err: btcspv.ErrWrongLengthHeader,
		},
		{
			name: "not an epoch end",
			instr: &AddDifficultyChange{
				OldPeriodStart:    genesisRaw,
				OldPeriodEndIndex: 1,
				OldPeriodEnd:      genesisRaw,
				Headers:           block1Raw,
			},
			err: relay.ErrUnexpectedDifficultyChange,
		},
		{
			name: "unknown new best",
			instr: &MarkNewHeaviest{
				LCAIndex:     1,
				CurrentBest:  genesisRaw,
				NewBestIndex: 2,
				NewBest:      block1Raw,
			},
			err: headerstore.ErrUnknownIndex,
		},
		{
			name: "already initialized",
			instr: initInstr(),
			err:   ErrAlreadyInit,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			before := stateBytes(t, db)
			require.ErrorIs(t, db.Process(test.instr), test.err)
			require.Equal(t, before, stateBytes(t, db))
		})
	}
}

// TestProcessStateSpace checks the bound on the encoded state.
func TestProcessStateSpace(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, WithMaxStateSize(512))

	err := db.Process(initInstr())
	require.ErrorIs(t, err, ErrInsufficientStateSpace)
	require.Equal(t, CodeInsufficientStateSpace, CodeOf(err))

	state, err := db.FetchState()
	require.NoError(t, err)
	require.Equal(t, KindUninitialized, state.Kind())

	// A state that fits exactly is accepted.
	r, err := relay.New(
		genesisRaw, 0, chaintest.MainNetGenesis().BlockHash(), true,
		relay.WithCapacity(16),
	)
	require.NoError(t, err)
	encoded, err := Active(r).Bytes()
	require.NoError(t, err)

	db = newTestDB(t, WithMaxStateSize(uint64(len(encoded))))
	require.NoError(t, db.Process(initInstr()))
	require.Equal(t, encoded, stateBytes(t, db))
}

// TestReopen checks that the relay survives closing the database.
func TestReopen(t *testing.T) {
	t.Parallel()

	cfg := &kvdb.BoltBackendConfig{
		DBPath:            t.TempDir(),
		DBFileName:        "relay.db",
		NoFreelistSync:    true,
		AutoCompactMinAge: kvdb.DefaultBoltAutoCompactMinAge,
		DBTimeout:         kvdb.DefaultDBTimeout,
	}

	backend, err := kvdb.GetBoltBackend(cfg)
	require.NoError(t, err)
	db, err := New(backend)
	require.NoError(t, err)

	require.NoError(t, db.Process(initInstr()))
	require.NoError(t, db.Process(&AddHeaders{
		AnchorIndex: 1,
		Anchor:      genesisRaw,
		Headers:     block1Raw,
	}))
	before, err := db.FetchRelay()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	backend, err = kvdb.GetBoltBackend(cfg)
	require.NoError(t, err)
	db, err = New(backend)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	after, err := db.FetchRelay()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.EqualValues(t, 3, after.NextIndex())
}

// TestCodeOf checks the error code mapping, including wrapped errors.
func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code ErrorCode
	}{
		{ErrNotYetInit, CodeNotYetInit},
		{ErrAlreadyInit, CodeAlreadyInit},
		{relay.ErrNotHeavier, CodeNotHeavier},
		{relay.ErrTooDeep, CodeTooDeep},
		{btcspv.ErrInvalidChain, CodeInvalidChain},
		{btcspv.ErrBadMerkleProof, CodeBadMerkleProof},
		{
			fmt.Errorf("wrapped: %w", relay.ErrNotLatestAncestor),
			CodeNotLatestAncestor,
		},
		{
			fmt.Errorf("%w: 9", headerstore.ErrNotRetained),
			CodeNotRetained,
		},
		{
			fmt.Errorf("%w: 3", ErrClosedRequest),
			CodeClosedRequest,
		},
		{ErrNonStandardPays, CodeNonStandardPays},
		{fmt.Errorf("plain"), CodeUnknownError},
	}

	for _, test := range tests {
		require.Equal(t, test.code, CodeOf(test.err), test.err.Error())
	}
}

// TestDecodeStateUnknownKind checks that an unknown kind byte is rejected.
func TestDecodeStateUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := DecodeState([]byte{7})
	require.ErrorIs(t, err, ErrUnknownStateKind)

	state, err := DecodeState(nil)
	require.NoError(t, err)
	require.Equal(t, KindUninitialized, state.Kind())

	_, err = DecodeState([]byte{byte(KindActive), 0xff})
	require.Error(t, err)
}
