// Package chaintest builds small header chains with trivially easy targets
// for use in tests.
package chaintest

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// EasyBits is the regtest proof of work limit. Roughly every other
	// nonce satisfies it.
	EasyBits = 0x207fffff

	// BaseTime is the timestamp used for the first generated header.
	BaseTime = 1600000000
)

const (
	// block1Hex is the serialized header of main network block 1.
	block1Hex = "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c" +
		"68d6190000000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7" +
		"b1cdb606e857233e0e61bc6649ffff001d01e36299"

	// block1CoinbaseHex is the only transaction of main network block 1.
	block1CoinbaseHex = "01000000010000000000000000000000000000000000000" +
		"000000000000000000000000000ffffffff0704ffff001d0104ffffffff01" +
		"00f2052a0100000043410496b538e853519c726a2c91e61ec11600ae13908" +
		"13a627c66fb8be7947be63c52da7589379515d4e0a604f8141781e6229472" +
		"1166bf621e73a82cbf2342c858eeac00000000"
)

// MainNetGenesis returns the bitcoin main network genesis header.
func MainNetGenesis() wire.BlockHeader {
	return chaincfg.MainNetParams.GenesisBlock.Header
}

// MainNetBlock1 returns the header of main network block 1.
func MainNetBlock1() wire.BlockHeader {
	var header wire.BlockHeader
	if err := header.Deserialize(hexReader(block1Hex)); err != nil {
		panic(err)
	}

	return header
}

// MainNetBlock1Coinbase returns the coinbase transaction of main network
// block 1.
func MainNetBlock1Coinbase() *wire.MsgTx {
	tx := &wire.MsgTx{}
	err := tx.DeserializeNoWitness(hexReader(block1CoinbaseHex))
	if err != nil {
		panic(err)
	}

	return tx
}

func hexReader(s string) *bytes.Reader {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return bytes.NewReader(b)
}

// Mine increments the nonce of header until its digest meets its target.
func Mine(header *wire.BlockHeader) {
	target := blockchain.CompactToBig(header.Bits)
	for {
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return
		}
		header.Nonce++
	}
}

// Next returns a mined header on top of prev.
func Next(prev *wire.BlockHeader, bits uint32, timestamp uint32,
	merkleRoot chainhash.Hash) wire.BlockHeader {

	header := wire.BlockHeader{
		Version:    4,
		PrevBlock:  prev.BlockHash(),
		MerkleRoot: merkleRoot,
		Timestamp:  time.Unix(int64(timestamp), 0),
		Bits:       bits,
	}
	Mine(&header)

	return header
}

// Extend returns n mined headers on top of prev. Each header is spacing
// seconds after its parent, and its merkle root is derived from salt so that
// chains built from the same parent with different salts diverge.
func Extend(prev *wire.BlockHeader, n int, bits uint32, spacing uint32,
	salt byte) []wire.BlockHeader {

	headers := make([]wire.BlockHeader, 0, n)
	for i := 0; i < n; i++ {
		ts := uint32(prev.Timestamp.Unix()) + spacing
		root := chainhash.HashH([]byte{salt, byte(i), byte(i >> 8)})

		next := Next(prev, bits, ts, root)
		headers = append(headers, next)
		prev = &headers[len(headers)-1]
	}

	return headers
}

// Serialize concatenates the serialized headers.
func Serialize(headers ...wire.BlockHeader) []byte {
	var b bytes.Buffer
	for i := range headers {
		// Writes to a bytes.Buffer never fail.
		_ = headers[i].Serialize(&b)
	}

	return b.Bytes()
}

// Tx returns a distinct, minimal transaction.
func Tx(seed uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.HashH([]byte{byte(seed), byte(seed >> 8)}),
			Index: seed,
		},
		Sequence: wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(int64(seed)+1000, []byte{0x51}))

	return tx
}

// SerializeTx returns the legacy serialization of tx.
func SerializeTx(tx *wire.MsgTx) []byte {
	var b bytes.Buffer
	_ = tx.SerializeNoWitness(&b)

	return b.Bytes()
}
