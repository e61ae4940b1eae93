// Package btcspv parses and validates Bitcoin block headers, header chains
// and transaction inclusion proofs.
package btcspv

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// HeaderSize is the serialized size of a Bitcoin block header.
const HeaderSize = 80

// diff1Bits is the compact encoding of the difficulty 1 target.
const diff1Bits = 0x1d00ffff

var diff1Target = blockchain.CompactToBig(diff1Bits)

// Header is a parsed 80 byte block header together with its digest.
type Header struct {
	raw    [HeaderSize]byte
	header wire.BlockHeader
	digest chainhash.Hash
}

// ParseHeader parses a raw 80 byte header.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrWrongLengthHeader,
			len(b))
	}

	h := &Header{}
	copy(h.raw[:], b)

	if err := h.header.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	h.digest = h.header.BlockHash()

	return h, nil
}

// NewHeader wraps an already decoded wire header.
func NewHeader(header *wire.BlockHeader) *Header {
	var b bytes.Buffer

	// Serializing into a bytes.Buffer cannot fail.
	_ = header.Serialize(&b)

	h := &Header{header: *header, digest: header.BlockHash()}
	copy(h.raw[:], b.Bytes())

	return h
}

// Raw returns a copy of the serialized header.
func (h *Header) Raw() []byte {
	raw := h.raw
	return raw[:]
}

// BlockHeader returns the decoded wire header.
func (h *Header) BlockHeader() wire.BlockHeader {
	return h.header
}

// Digest returns the double-sha256 digest of the header in internal byte
// order.
func (h *Header) Digest() chainhash.Hash {
	return h.digest
}

// ParentDigest returns the digest of the previous block.
func (h *Header) ParentDigest() chainhash.Hash {
	return h.header.PrevBlock
}

// MerkleRoot returns the transaction merkle root committed to by the header.
func (h *Header) MerkleRoot() chainhash.Hash {
	return h.header.MerkleRoot
}

// Bits returns the compact target encoding.
func (h *Header) Bits() uint32 {
	return h.header.Bits
}

// Target returns the expanded difficulty target.
func (h *Header) Target() *big.Int {
	return blockchain.CompactToBig(h.header.Bits)
}

// Timestamp returns the header time in seconds since the unix epoch.
func (h *Header) Timestamp() uint32 {
	return uint32(h.header.Timestamp.Unix())
}

// Difficulty returns the difficulty 1 target divided by the header target.
// Targets easier than difficulty 1 yield zero.
func (h *Header) Difficulty() *big.Int {
	target := h.Target()
	if target.Sign() <= 0 {
		return new(big.Int)
	}

	return new(big.Int).Div(diff1Target, target)
}

// Work returns the expected number of hashes needed to produce a header at
// this target.
func (h *Header) Work() *big.Int {
	return blockchain.CalcWork(h.header.Bits)
}

// CheckProofOfWork returns ErrInsufficientWork unless the digest is at or
// below the header's own target.
func (h *Header) CheckProofOfWork() error {
	target := h.Target()
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive target %08x",
			ErrInsufficientWork, h.header.Bits)
	}

	if blockchain.HashToBig(&h.digest).Cmp(target) > 0 {
		return fmt.Errorf("%w: %v above target %08x",
			ErrInsufficientWork, h.digest, h.header.Bits)
	}

	return nil
}

// String returns the digest of the header in display byte order.
func (h *Header) String() string {
	return h.digest.String()
}
