package relaydb

import (
	"bytes"
	"math"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// p2pkhScript returns a pay to pubkey hash script for a hash filled with b.
func p2pkhScript(b byte) []byte {
	script := []byte{txscript.OP_DUP, txscript.OP_HASH160, 20}
	script = append(script, bytes.Repeat([]byte{b}, 20)...)

	return append(script, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)
}

// requestTx returns a transaction spending two outpoints into two pay to
// pubkey hash outputs.
func requestTx() *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{
		Hash:  chainhash.Hash{1},
		Index: 0,
	}, nil, nil))
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{
		Hash:  chainhash.Hash{2},
		Index: 3,
	}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(5000, p2pkhScript(0xaa)))
	tx.AddTxOut(wire.NewTxOut(7000, p2pkhScript(0xbb)))

	return tx
}

// mustRequest builds an active request from o.
func mustRequest(t *testing.T, o *OpenRequest) *ProofRequest {
	t.Helper()

	req, err := newProofRequest(o)
	require.NoError(t, err)
	require.True(t, req.Active)

	return req
}

// TestNewProofRequest checks validation of opened requests.
func TestNewProofRequest(t *testing.T) {
	t.Parallel()

	spends := SerializeOutPoint(wire.OutPoint{Hash: chainhash.Hash{1}})

	tests := []struct {
		name string
		open *OpenRequest
		err  error
	}{
		{
			name: "empty",
			open: &OpenRequest{NumConfs: 1},
			err:  ErrNoRequest,
		},
		{
			name: "short outpoint",
			open: &OpenRequest{Spends: spends[:35]},
			err:  ErrSpendsLength,
		},
		{
			name: "long outpoint",
			open: &OpenRequest{Spends: append(spends, 0)},
			err:  ErrSpendsLength,
		},
		{
			name: "long script",
			open: &OpenRequest{
				Pays: append(
					p2pkhScript(1), make([]byte, 26)...,
				),
			},
			err: ErrPaysLength,
		},
		{
			name: "nonstandard script",
			open: &OpenRequest{Pays: []byte{txscript.OP_TRUE}},
			err:  ErrNonStandardPays,
		},
		{
			name: "spends only",
			open: &OpenRequest{Spends: spends},
		},
		{
			name: "pays only",
			open: &OpenRequest{Pays: p2pkhScript(1), PaysValue: 9},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req, err := newProofRequest(test.open)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)

			require.Equal(t, len(test.open.Spends) != 0,
				req.HasSpends())
			require.Equal(t, len(test.open.Pays) != 0,
				req.HasPays())
			require.Equal(t, test.open.PaysValue, req.PaysValue)
		})
	}
}

// TestCheckRequest checks matching of proven transactions against
// requests.
func TestCheckRequest(t *testing.T) {
	t.Parallel()

	tx := requestTx()
	secondIn := SerializeOutPoint(tx.TxIn[1].PreviousOutPoint)

	closed := mustRequest(t, &OpenRequest{Spends: secondIn})
	closed.Active = false

	tests := []struct {
		name   string
		req    *ProofRequest
		input  uint32
		output uint32
		err    error
	}{
		{
			name:  "spends match",
			req:   mustRequest(t, &OpenRequest{Spends: secondIn}),
			input: 1,
		},
		{
			name:  "spends mismatch",
			req:   mustRequest(t, &OpenRequest{Spends: secondIn}),
			input: 0,
			err:   ErrRequestSpends,
		},
		{
			name:  "input out of range",
			req:   mustRequest(t, &OpenRequest{Spends: secondIn}),
			input: 2,
			err:   ErrInvalidVin,
		},
		{
			name: "pays match with any value",
			req: mustRequest(t, &OpenRequest{
				Pays: p2pkhScript(0xbb),
			}),
			output: 1,
		},
		{
			name: "pays exact value",
			req: mustRequest(t, &OpenRequest{
				Pays:      p2pkhScript(0xbb),
				PaysValue: 7000,
			}),
			output: 1,
		},
		{
			name: "pays too little",
			req: mustRequest(t, &OpenRequest{
				Pays:      p2pkhScript(0xbb),
				PaysValue: 7001,
			}),
			output: 1,
			err:    ErrRequestValue,
		},
		{
			name: "pays mismatch",
			req: mustRequest(t, &OpenRequest{
				Pays: p2pkhScript(0xbb),
			}),
			output: 0,
			err:    ErrRequestPays,
		},
		{
			name: "output out of range",
			req: mustRequest(t, &OpenRequest{
				Pays: p2pkhScript(0xbb),
			}),
			output: 2,
			err:    ErrInvalidVout,
		},
		{
			name: "both match",
			req: mustRequest(t, &OpenRequest{
				Spends:    secondIn,
				Pays:      p2pkhScript(0xaa),
				PaysValue: 5000,
			}),
			input:  1,
			output: 0,
		},
		{
			name: "pays matches but spends does not",
			req: mustRequest(t, &OpenRequest{
				Spends: secondIn,
				Pays:   p2pkhScript(0xaa),
			}),
			input:  0,
			output: 0,
			err:    ErrRequestSpends,
		},
		{
			name: "unrequested index ignored",
			req: mustRequest(t, &OpenRequest{
				Pays: p2pkhScript(0xaa),
			}),
			input:  math.MaxUint32,
			output: 0,
		},
		{
			name:  "closed",
			req:   closed,
			input: 1,
			err:   ErrClosedRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := CheckRequest(
				test.req, tx, test.input, test.output,
			)
			if test.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, test.err)
		})
	}
}

// TestProofRequestCodec checks that stored requests decode to the same
// request.
func TestProofRequestCodec(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		var spends, pays chainhash.Hash
		copy(spends[:], rapid.SliceOfN(
			rapid.Byte(), 32, 32,
		).Draw(t, "spends"))
		copy(pays[:], rapid.SliceOfN(
			rapid.Byte(), 32, 32,
		).Draw(t, "pays"))

		req := &ProofRequest{
			ID:        RequestID(rapid.Uint64().Draw(t, "id")),
			Spends:    spends,
			Pays:      pays,
			PaysValue: rapid.Uint64().Draw(t, "paysValue"),
			Active:    rapid.Bool().Draw(t, "active"),
			NumConfs:  rapid.Uint8().Draw(t, "numConfs"),
		}

		var b bytes.Buffer
		require.NoError(t, req.Encode(&b))

		decoded, err := decodeRequest(req.ID, b.Bytes())
		require.NoError(t, err)
		require.Equal(t, req, decoded)
	})
}
