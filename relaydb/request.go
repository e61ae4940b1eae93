package relaydb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// OutPointSize is the size of a serialized outpoint: the funding
	// txid followed by the little endian output index.
	OutPointSize = chainhash.HashSize + 4

	// MaxPaysScriptSize bounds the output script a request may ask for.
	MaxPaysScriptSize = 50
)

var (
	// requestBucket is nested in relayBucket and maps big endian request
	// ids to encoded requests. Its sequence hands out the ids.
	requestBucket = []byte("proof-requests")
)

var (
	// ErrUnknownRequest is returned for a request id that was never
	// assigned.
	ErrUnknownRequest = errors.New("unknown proof request")

	// ErrSpendsLength is returned when the requested outpoint is not
	// OutPointSize bytes.
	ErrSpendsLength = errors.New("spends is not a 36 byte outpoint")

	// ErrPaysLength is returned when the requested output script exceeds
	// MaxPaysScriptSize.
	ErrPaysLength = errors.New("pays script too long")

	// ErrNonStandardPays is returned when the requested output script is
	// not a standard script.
	ErrNonStandardPays = errors.New("pays script is not standard")

	// ErrNoRequest is returned when a request names neither an outpoint
	// nor an output script.
	ErrNoRequest = errors.New("no request specified")

	// ErrInvalidVin is returned when a proof's input index does not exist
	// in the proven transaction.
	ErrInvalidVin = errors.New("input index out of range")

	// ErrInvalidVout is returned when a proof's output index does not
	// exist in the proven transaction.
	ErrInvalidVout = errors.New("output index out of range")

	// ErrClosedRequest is returned when a proof is provided for a closed
	// request, or a closed request is closed again.
	ErrClosedRequest = errors.New("proof request is not active")

	// ErrRequestPays is returned when the selected output does not pay
	// the requested script.
	ErrRequestPays = errors.New("output does not match pays request")

	// ErrRequestValue is returned when the selected output pays less than
	// the requested value.
	ErrRequestValue = errors.New("output does not match value request")

	// ErrRequestSpends is returned when the selected input does not spend
	// the requested outpoint.
	ErrRequestSpends = errors.New("input does not match spends request")

	// ErrNotEnoughConfs is returned when the proven transaction has fewer
	// confirmations than requested.
	ErrNotEnoughConfs = errors.New("not enough confirmations")
)

// RequestID identifies a proof request. Ids start at 1 and are never
// reused.
type RequestID uint64

// ProofRequest asks for a proof of a transaction that spends an outpoint,
// pays a script, or both.
type ProofRequest struct {
	// ID is the key the request is stored under. It is not part of the
	// encoded request.
	ID RequestID

	// Spends is the double sha256 of the requested outpoint, or the zero
	// hash if any input is accepted.
	Spends chainhash.Hash

	// Pays is the double sha256 of the requested output script, or the
	// zero hash if any output is accepted.
	Pays chainhash.Hash

	// PaysValue is the smallest accepted output value in satoshis. Zero
	// accepts any value.
	PaysValue uint64

	// Active is false once the request was closed.
	Active bool

	// NumConfs is the number of confirmations a proof must carry.
	NumConfs uint8
}

// HasSpends reports whether the request names an outpoint.
func (p *ProofRequest) HasSpends() bool {
	return p.Spends != chainhash.Hash{}
}

// HasPays reports whether the request names an output script.
func (p *ProofRequest) HasPays() bool {
	return p.Pays != chainhash.Hash{}
}

func (p *ProofRequest) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, (*[32]byte)(&p.Spends)),
		tlv.MakePrimitiveRecord(2, (*[32]byte)(&p.Pays)),
		tlv.MakePrimitiveRecord(4, &p.PaysValue),
		tlv.MakePrimitiveRecord(6, &p.Active),
		tlv.MakePrimitiveRecord(8, &p.NumConfs),
	}
}

// Encode writes the request body as a tlv stream.
func (p *ProofRequest) Encode(w io.Writer) error {
	stream, err := tlv.NewStream(p.records()...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// decodeRequest reads a request body stored under id.
func decodeRequest(id RequestID, b []byte) (*ProofRequest, error) {
	req := &ProofRequest{ID: id}

	stream, err := tlv.NewStream(req.records()...)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("unable to decode request %d: %w", id,
			err)
	}

	return req, nil
}

// SerializeOutPoint returns the 36 byte form of op that Spends commits to.
func SerializeOutPoint(op wire.OutPoint) []byte {
	b := make([]byte, OutPointSize)
	copy(b, op.Hash[:])
	binary.LittleEndian.PutUint32(b[chainhash.HashSize:], op.Index)

	return b
}

func requestKey(id RequestID) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))

	return k[:]
}

// newProofRequest validates an OpenRequest instruction and returns the
// request it describes.
func newProofRequest(o *OpenRequest) (*ProofRequest, error) {
	if len(o.Spends) == 0 && len(o.Pays) == 0 {
		return nil, ErrNoRequest
	}

	req := &ProofRequest{
		PaysValue: o.PaysValue,
		Active:    true,
		NumConfs:  o.NumConfs,
	}

	if len(o.Spends) != 0 {
		if len(o.Spends) != OutPointSize {
			return nil, fmt.Errorf("%w: got %d bytes",
				ErrSpendsLength, len(o.Spends))
		}
		req.Spends = chainhash.DoubleHashH(o.Spends)
	}

	if len(o.Pays) != 0 {
		if len(o.Pays) > MaxPaysScriptSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrPaysLength,
				len(o.Pays))
		}
		if txscript.GetScriptClass(o.Pays) == txscript.NonStandardTy {
			return nil, fmt.Errorf("%w: %x", ErrNonStandardPays,
				o.Pays)
		}
		req.Pays = chainhash.DoubleHashH(o.Pays)
	}

	return req, nil
}

// putRequest assigns the next id to req and stores it.
func putRequest(bucket kvdb.RwBucket, req *ProofRequest) error {
	seq, err := bucket.NextSequence()
	if err != nil {
		return err
	}
	req.ID = RequestID(seq)

	var b bytes.Buffer
	if err := req.Encode(&b); err != nil {
		return err
	}

	return bucket.Put(requestKey(req.ID), b.Bytes())
}

// fetchRequest reads the request stored under id.
func fetchRequest(bucket kvdb.RBucket, id RequestID) (*ProofRequest, error) {
	b := bucket.Get(requestKey(id))
	if b == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRequest, id)
	}

	return decodeRequest(id, b)
}

// closeRequest marks the request stored under id inactive.
func closeRequest(bucket kvdb.RwBucket, id RequestID) error {
	req, err := fetchRequest(bucket, id)
	if err != nil {
		return err
	}
	if !req.Active {
		return fmt.Errorf("%w: %d", ErrClosedRequest, id)
	}
	req.Active = false

	var b bytes.Buffer
	if err := req.Encode(&b); err != nil {
		return err
	}

	return bucket.Put(requestKey(id), b.Bytes())
}

// CheckRequest returns nil if tx satisfies req when its input at inputIndex
// and output at outputIndex are selected. Indices of unrequested sides are
// not looked at.
func CheckRequest(req *ProofRequest, tx *wire.MsgTx, inputIndex,
	outputIndex uint32) error {

	if !req.Active {
		return fmt.Errorf("%w: %d", ErrClosedRequest, req.ID)
	}

	if req.HasPays() {
		if int(outputIndex) >= len(tx.TxOut) {
			return fmt.Errorf("%w: %d of %d", ErrInvalidVout,
				outputIndex, len(tx.TxOut))
		}

		out := tx.TxOut[outputIndex]
		if chainhash.DoubleHashH(out.PkScript) != req.Pays {
			return fmt.Errorf("%w: request %d", ErrRequestPays,
				req.ID)
		}
		if req.PaysValue != 0 && uint64(out.Value) < req.PaysValue {
			return fmt.Errorf("%w: request %d wants %d, got %d",
				ErrRequestValue, req.ID, req.PaysValue,
				out.Value)
		}
	}

	if req.HasSpends() {
		if int(inputIndex) >= len(tx.TxIn) {
			return fmt.Errorf("%w: %d of %d", ErrInvalidVin,
				inputIndex, len(tx.TxIn))
		}

		prevOut := tx.TxIn[inputIndex].PreviousOutPoint
		outpoint := SerializeOutPoint(prevOut)
		if chainhash.DoubleHashH(outpoint) != req.Spends {
			return fmt.Errorf("%w: request %d", ErrRequestSpends,
				req.ID)
		}
	}

	return nil
}
