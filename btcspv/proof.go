package btcspv

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ProofHeader is the confirming header of a Proof along with the fields the
// prover claims it commits to.
type ProofHeader struct {
	// Raw is the serialized 80 byte header.
	Raw []byte

	// Hash is the claimed digest of Raw.
	Hash chainhash.Hash

	// Height is the claimed height of the header.
	Height uint32

	// PrevHash is the claimed parent digest.
	PrevHash chainhash.Hash

	// MerkleRoot is the claimed transaction merkle root.
	MerkleRoot chainhash.Hash
}

// Validate checks the claimed fields against the raw header.
func (p *ProofHeader) Validate() error {
	h, err := ParseHeader(p.Raw)
	if err != nil {
		return err
	}

	switch {
	case h.Digest() != p.Hash:
		return fmt.Errorf("%w: claimed %v, got %v", ErrWrongDigest,
			p.Hash, h.Digest())

	case h.MerkleRoot() != p.MerkleRoot:
		return ErrWrongMerkleRoot

	case h.ParentDigest() != p.PrevHash:
		return ErrWrongPrevHash
	}

	return nil
}

// Proof shows that a transaction was included in a block.
type Proof struct {
	// Tx is the transaction serialized without witness data.
	Tx []byte

	// TxID is the claimed transaction id.
	TxID chainhash.Hash

	// Index is the position of the transaction in the block.
	Index uint32

	// ConfirmingHeader is the header of the including block.
	ConfirmingHeader ProofHeader

	// IntermediateNodes is the merkle branch from the transaction to the
	// root, leaf side first.
	IntermediateNodes []chainhash.Hash
}

// Validate checks that the proof is internally consistent: the header fields
// match the raw header, the transaction hashes to TxID, and the merkle branch
// connects TxID to the header's merkle root.
func (p *Proof) Validate() error {
	if err := p.ConfirmingHeader.Validate(); err != nil {
		return err
	}

	var tx wire.MsgTx
	if err := tx.DeserializeNoWitness(bytes.NewReader(p.Tx)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}

	if tx.TxHash() != p.TxID {
		return fmt.Errorf("%w: claimed %v, got %v", ErrWrongTxID,
			p.TxID, tx.TxHash())
	}

	root, err := MerkleRootFromBranch(p.TxID, p.Index, p.IntermediateNodes)
	if err != nil {
		return err
	}
	if root != p.ConfirmingHeader.MerkleRoot {
		return fmt.Errorf("%w: branch leads to %v", ErrBadMerkleProof,
			root)
	}

	return nil
}

// MerkleRootFromBranch folds a merkle branch into the root it commits to.
// Index selects, bit by bit from the leaf up, whether the running hash is the
// left or right child.
func MerkleRootFromBranch(leaf chainhash.Hash, index uint32,
	branch []chainhash.Hash) (chainhash.Hash, error) {

	if len(branch) < 32 && index>>uint(len(branch)) != 0 {
		return chainhash.Hash{}, fmt.Errorf("%w: index %d too large "+
			"for branch of length %d", ErrBadMerkleProof, index,
			len(branch))
	}

	current := leaf
	for _, node := range branch {
		if index&1 == 0 {
			current = blockchain.HashMerkleBranches(&current, &node)
		} else {
			current = blockchain.HashMerkleBranches(&node, &current)
		}
		index >>= 1
	}

	return current, nil
}

// MerkleBranch returns the merkle branch for the transaction at index within
// the given transactions, leaf side first, and the merkle root.
func MerkleBranch(txs []*wire.MsgTx, index uint32) ([]chainhash.Hash,
	chainhash.Hash, error) {

	if int(index) >= len(txs) {
		return nil, chainhash.Hash{}, fmt.Errorf("tx index %d out of "+
			"range for %d transactions", index, len(txs))
	}

	utxs := make([]*btcutil.Tx, 0, len(txs))
	for _, tx := range txs {
		utxs = append(utxs, btcutil.NewTx(tx))
	}

	// The merkle tree store is a flat array of the tree levels, leaves
	// first, with the root as the last entry. Each level is padded to an
	// even width by the store.
	tree := blockchain.BuildMerkleTreeStore(utxs, false)

	var (
		branch []chainhash.Hash
		offset = 0
		width  = nextPowerOfTwo(len(txs))
		pos    = int(index)
	)
	for width > 1 {
		sibling := tree[offset+(pos^1)]

		// Missing right siblings are duplicates of the left node.
		if sibling == nil {
			sibling = tree[offset+pos]
		}
		branch = append(branch, *sibling)

		offset += width
		width /= 2
		pos /= 2
	}

	return branch, *tree[len(tree)-1], nil
}

// nextPowerOfTwo returns the smallest power of two at or above n.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
