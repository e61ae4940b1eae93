package headerstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvrelay/queue"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// SentinelIndex is the parent index of records that were seeded at
	// bootstrap and have no known parent. It is never assigned to a
	// record, so following it always fails.
	SentinelIndex = math.MaxUint32

	// DefaultCapacity is the number of records retained by a store when
	// no other capacity is requested.
	DefaultCapacity = 4096

	// MaxCapacity bounds the capacity accepted when decoding a store.
	MaxCapacity = 1 << 20
)

var (
	// ErrNotRetained is returned when a record has been overwritten by
	// newer records.
	ErrNotRetained = errors.New("header record no longer retained")

	// ErrUnknownIndex is returned when an index has not been assigned to
	// any record. This includes SentinelIndex.
	ErrUnknownIndex = errors.New("unknown header record index")
)

// HeaderInfo is the metadata kept for every accepted header.
type HeaderInfo struct {
	// Digest is the double-sha256 hash of the header.
	Digest chainhash.Hash

	// ParentIndex is the store index of the parent record, or
	// SentinelIndex for bootstrap records.
	ParentIndex uint32

	// EpochStartIndex is the store index of the first record of this
	// record's difficulty epoch.
	EpochStartIndex uint32

	// Height is the block height of the header.
	Height uint32
}

// IsBootstrap returns true if the record was seeded without a parent.
func (h HeaderInfo) IsBootstrap() bool {
	return h.ParentIndex == SentinelIndex
}

// String returns a short human readable description of the record.
func (h HeaderInfo) String() string {
	return fmt.Sprintf("%v@%d", h.Digest, h.Height)
}

// Store is a bounded, overwrite-oldest store of header records addressed by
// stable uint32 indices.
type Store struct {
	buf *queue.CircularBuffer[HeaderInfo]
}

// NewStore creates an empty store retaining the given number of records.
func NewStore(capacity int) (*Store, error) {
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("capacity %d exceeds maximum %d",
			capacity, MaxCapacity)
	}

	buf, err := queue.NewCircularBuffer[HeaderInfo](capacity)
	if err != nil {
		return nil, err
	}

	return &Store{buf: buf}, nil
}

// Push appends a record and returns its index.
func (s *Store) Push(info HeaderInfo) uint32 {
	if s.buf.Total() >= SentinelIndex {
		panic("header store index space exhausted")
	}

	return uint32(s.buf.Push(info))
}

// Lookup returns the record at index, or an error if the index does not
// resolve to a retained record.
func (s *Store) Lookup(index uint32) (HeaderInfo, error) {
	info, err := s.buf.Get(uint64(index))
	switch {
	case errors.Is(err, queue.ErrNotRetained):
		return HeaderInfo{}, fmt.Errorf("%w: index %d", ErrNotRetained,
			index)

	case err != nil:
		return HeaderInfo{}, fmt.Errorf("%w: index %d", ErrUnknownIndex,
			index)
	}

	return info, nil
}

// Read returns the record at index. Callers must only pass indices that are
// known to be retained, so a failed read indicates corrupted input and
// panics.
func (s *Store) Read(index uint32) HeaderInfo {
	info, err := s.Lookup(index)
	if err != nil {
		panic(fmt.Sprintf("header store read: %v", err))
	}

	return info
}

// ParentOf returns the parent record of info. It panics if the parent is not
// retained or its height is not exactly one below info's height.
func (s *Store) ParentOf(info HeaderInfo) HeaderInfo {
	parent := s.Read(info.ParentIndex)
	if info.Height == 0 || parent.Height != info.Height-1 {
		panic(fmt.Sprintf("parent of %v has height %d", info,
			parent.Height))
	}

	return parent
}

// AncestorOf walks depth parent links back from info.
func (s *Store) AncestorOf(info HeaderInfo, depth uint32) HeaderInfo {
	current := info
	for i := uint32(0); i < depth; i++ {
		current = s.ParentOf(current)
	}

	return current
}

// LookupAncestor is like AncestorOf, but returns an error instead of
// panicking when a link leads to a record that is not retained or was never
// assigned. A link to a record of the wrong height is still fatal.
func (s *Store) LookupAncestor(info HeaderInfo,
	depth uint32) (HeaderInfo, error) {

	current := info
	for i := uint32(0); i < depth; i++ {
		if _, err := s.Lookup(current.ParentIndex); err != nil {
			return HeaderInfo{}, err
		}
		current = s.ParentOf(current)
	}

	return current, nil
}

// FindByDigest returns the index of the newest retained record with the
// given digest.
func (s *Store) FindByDigest(digest chainhash.Hash) fn.Option[uint32] {
	idx := s.buf.FindBy(func(info HeaderInfo) bool {
		return info.Digest == digest
	})

	return fn.MapOption(func(i uint64) uint32 {
		return uint32(i)
	})(idx)
}

// Capacity returns the number of records the store retains.
func (s *Store) Capacity() int {
	return s.buf.Size()
}

// Next returns the index that the next pushed record will receive.
func (s *Store) Next() uint32 {
	return uint32(s.buf.Total())
}

// Records returns the retained records ordered from oldest to newest.
func (s *Store) Records() []HeaderInfo {
	return s.buf.List()
}
