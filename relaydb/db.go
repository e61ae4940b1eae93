// Package relaydb persists a relay in a key-value database and applies
// encoded instructions to it atomically.
package relaydb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/relay"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// DefaultMaxStateSize is the default bound on the encoded relay
	// state.
	DefaultMaxStateSize = 256 * 1024
)

var (
	// relayBucket is the top-level bucket holding the relay state.
	relayBucket = []byte("spv-relay")

	// stateKey is the key of the encoded state within relayBucket.
	stateKey = []byte("state")
)

// Options holds the tunables of a DB.
type Options struct {
	// MaxStateSize is the largest encoded state, in bytes, that may be
	// stored.
	MaxStateSize uint64
}

// DefaultOptions returns the default DB options.
func DefaultOptions() *Options {
	return &Options{
		MaxStateSize: DefaultMaxStateSize,
	}
}

// OptionModifier is a function signature for modifying the default Options.
type OptionModifier func(*Options)

// WithMaxStateSize sets the largest encoded state that may be stored.
func WithMaxStateSize(size uint64) OptionModifier {
	return func(o *Options) {
		o.MaxStateSize = size
	}
}

// DB is a relay stored in a kvdb backend.
type DB struct {
	backend kvdb.Backend

	opts *Options
}

// New wraps backend, creating the relay and request buckets if they do not
// exist yet.
func New(backend kvdb.Backend, modifiers ...OptionModifier) (*DB, error) {
	opts := DefaultOptions()
	for _, modifier := range modifiers {
		modifier(opts)
	}

	err := kvdb.Update(backend, func(tx kvdb.RwTx) error {
		bucket, err := tx.CreateTopLevelBucket(relayBucket)
		if err != nil {
			return err
		}

		_, err = bucket.CreateBucketIfNotExists(requestBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, fmt.Errorf("unable to create relay bucket: %w", err)
	}

	return &DB{
		backend: backend,
		opts:    opts,
	}, nil
}

// Close closes the underlying backend.
func (d *DB) Close() error {
	return d.backend.Close()
}

// Process applies instr to the stored state in a single transaction. The
// state is left untouched when the instruction fails.
func (d *DB) Process(instr Instruction) error {
	_, err := d.process(instr)
	return err
}

// OpenRequest processes req and returns the id assigned to the new request.
func (d *DB) OpenRequest(req *OpenRequest) (RequestID, error) {
	return d.process(req)
}

// process applies instr and returns the id of the request it opened, if
// any.
func (d *DB) process(instr Instruction) (RequestID, error) {
	log.Debugf("Processing %v instruction", instr.Type())

	var (
		next *State
		id   RequestID
	)
	err := kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(relayBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		switch i := instr.(type) {
		case *OpenRequest:
			req, err := newProofRequest(i)
			if err != nil {
				return err
			}

			requests, err := requestsBucket(bucket)
			if err != nil {
				return err
			}
			if err := putRequest(requests, req); err != nil {
				return err
			}
			id = req.ID

			return nil

		case *CloseRequest:
			requests, err := requestsBucket(bucket)
			if err != nil {
				return err
			}

			return closeRequest(requests, RequestID(i.ID))
		}

		state, err := DecodeState(bucket.Get(stateKey))
		if err != nil {
			return err
		}

		next, err = transition(state, instr)
		if err != nil {
			return err
		}

		encoded, err := next.Bytes()
		if err != nil {
			return err
		}

		if uint64(len(encoded)) > d.opts.MaxStateSize {
			return fmt.Errorf("%w: state of %d bytes exceeds %d",
				ErrInsufficientStateSpace, len(encoded),
				d.opts.MaxStateSize)
		}

		return bucket.Put(stateKey, encoded)
	}, func() {
		next = nil
		id = 0
	})
	if err != nil {
		log.Debugf("%v instruction failed (code=%d): %v", instr.Type(),
			CodeOf(err), err)

		return 0, err
	}

	switch {
	case id != 0:
		log.Infof("Opened proof request %d", id)

	case next == nil:
		log.Infof("Processed %v instruction", instr.Type())

	default:
		r, _ := next.Relay()
		log.Infof("Processed %v instruction, best header %v at "+
			"index %d", instr.Type(), r.BestKnownDigest(),
			r.CurrentBestIndex())
	}

	return id, nil
}

// requestsBucket returns the request bucket nested in the relay bucket.
func requestsBucket(bucket kvdb.RwBucket) (kvdb.RwBucket, error) {
	requests := bucket.NestedReadWriteBucket(requestBucket)
	if requests == nil {
		return nil, kvdb.ErrBucketNotFound
	}

	return requests, nil
}

// transition returns the state that results from applying instr to state.
func transition(state *State, instr Instruction) (*State, error) {
	r, err := state.Relay()

	initInstr, isInit := instr.(*Initialize)
	switch {
	case isInit && err == nil:
		return nil, ErrAlreadyInit

	case isInit:
		var opts []relay.Option
		if initInstr.Capacity != 0 {
			opts = append(opts, relay.WithCapacity(
				int(initInstr.Capacity),
			))
		}

		r, err := relay.New(
			initInstr.Genesis, initInstr.Height,
			initInstr.EpochStart, initInstr.Mainnet,
			opts...,
		)
		if err != nil {
			return nil, err
		}

		return Active(r), nil

	case err != nil:
		return nil, err
	}

	if err := apply(r, instr); err != nil {
		return nil, err
	}

	return state, nil
}

// FetchState returns the stored state.
func (d *DB) FetchState() (*State, error) {
	var state *State
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(relayBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		var err error
		state, err = DecodeState(bucket.Get(stateKey))

		return err
	}, func() {
		state = nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// FetchRelay returns the stored relay, or ErrNotYetInit.
func (d *DB) FetchRelay() (*relay.Relay, error) {
	state, err := d.FetchState()
	if err != nil {
		return nil, err
	}

	return state.Relay()
}

// ValidateProof validates proof against the stored relay. The confirming
// header must be recorded at confirmingIndex. It returns the number of
// confirmations of the proof's transaction.
func (d *DB) ValidateProof(confirmingIndex uint32,
	proof *btcspv.Proof) (uint32, error) {

	r, err := d.FetchRelay()
	if err != nil {
		return 0, err
	}

	return r.ValidateProof(confirmingIndex, proof)
}

// FetchRequest returns the proof request stored under id.
func (d *DB) FetchRequest(id RequestID) (*ProofRequest, error) {
	var req *ProofRequest
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		requests := tx.ReadBucket(relayBucket).NestedReadBucket(
			requestBucket,
		)
		if requests == nil {
			return kvdb.ErrBucketNotFound
		}

		var err error
		req, err = fetchRequest(requests, id)

		return err
	}, func() {
		req = nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// FetchRequests returns every stored proof request ordered by id.
func (d *DB) FetchRequests() ([]*ProofRequest, error) {
	var reqs []*ProofRequest
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		requests := tx.ReadBucket(relayBucket).NestedReadBucket(
			requestBucket,
		)
		if requests == nil {
			return kvdb.ErrBucketNotFound
		}

		return requests.ForEach(func(k, v []byte) error {
			id := RequestID(binary.BigEndian.Uint64(k))
			req, err := decodeRequest(id, v)
			if err != nil {
				return err
			}
			reqs = append(reqs, req)

			return nil
		})
	}, func() {
		reqs = nil
	})
	if err != nil {
		return nil, err
	}

	return reqs, nil
}

// ProvideProof checks proof against the stored relay and the request
// stored under id. The proven transaction's input at inputIndex must spend
// the requested outpoint and its output at outputIndex must pay the
// requested script. It returns the number of confirmations.
func (d *DB) ProvideProof(id RequestID, confirmingIndex uint32,
	proof *btcspv.Proof, inputIndex, outputIndex uint32) (uint32, error) {

	var confs uint32
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(relayBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		requests := bucket.NestedReadBucket(requestBucket)
		if requests == nil {
			return kvdb.ErrBucketNotFound
		}

		req, err := fetchRequest(requests, id)
		if err != nil {
			return err
		}
		if !req.Active {
			return fmt.Errorf("%w: %d", ErrClosedRequest, id)
		}

		state, err := DecodeState(bucket.Get(stateKey))
		if err != nil {
			return err
		}
		r, err := state.Relay()
		if err != nil {
			return err
		}

		confs, err = r.ValidateProof(confirmingIndex, proof)
		if err != nil {
			return err
		}
		if confs < uint32(req.NumConfs) {
			return fmt.Errorf("%w: request %d wants %d, got %d",
				ErrNotEnoughConfs, id, req.NumConfs, confs)
		}

		var msgTx wire.MsgTx
		err = msgTx.DeserializeNoWitness(bytes.NewReader(proof.Tx))
		if err != nil {
			return fmt.Errorf("%w: %v", btcspv.ErrInvalidTx, err)
		}

		return CheckRequest(req, &msgTx, inputIndex, outputIndex)
	}, func() {
		confs = 0
	})
	if err != nil {
		log.Debugf("Proof for request %d rejected (code=%d): %v", id,
			CodeOf(err), err)

		return 0, err
	}

	log.Infof("Proof of %v satisfies request %d with %d confirmations",
		proof.TxID, id, confs)

	return confs, nil
}
