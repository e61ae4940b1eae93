package btcspv

import "errors"

var (
	// ErrWrongLengthHeader is returned when a header is not exactly 80
	// bytes, or a header array is empty or not a multiple of 80 bytes.
	ErrWrongLengthHeader = errors.New("header not exactly 80 bytes")

	// ErrInsufficientWork is returned when a header digest is above its
	// own difficulty target.
	ErrInsufficientWork = errors.New("header does not meet its target")

	// ErrInvalidChain is returned when a header does not reference the
	// digest of the header before it.
	ErrInvalidChain = errors.New("header does not reference its parent")

	// ErrUnexpectedDifficultyChange is returned when a header in an
	// array does not share the target of the header before it.
	ErrUnexpectedDifficultyChange = errors.New("unexpected difficulty " +
		"change")

	// ErrWrongDigest is returned when a claimed digest does not match the
	// digest of the raw header.
	ErrWrongDigest = errors.New("digest does not match raw header")

	// ErrWrongMerkleRoot is returned when a claimed merkle root does not
	// match the root committed to by the raw header.
	ErrWrongMerkleRoot = errors.New("merkle root does not match header")

	// ErrWrongPrevHash is returned when a claimed parent digest does not
	// match the parent committed to by the raw header.
	ErrWrongPrevHash = errors.New("previous hash does not match header")

	// ErrInvalidTx is returned when the proof transaction cannot be
	// parsed.
	ErrInvalidTx = errors.New("malformed transaction")

	// ErrWrongTxID is returned when the claimed transaction id is not the
	// digest of the proof transaction.
	ErrWrongTxID = errors.New("txid does not match transaction")

	// ErrBadMerkleProof is returned when the merkle branch does not
	// connect the transaction id to the merkle root.
	ErrBadMerkleProof = errors.New("invalid merkle proof")
)
