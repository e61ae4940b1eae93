package headerstore

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lightninglabs/spvrelay/queue"
)

// InfoSize is the encoded size of a single HeaderInfo.
const InfoSize = 32 + 4 + 4 + 4

var byteOrder = binary.BigEndian

// encodeInfo writes info into b, which must be at least InfoSize bytes.
func encodeInfo(b []byte, info *HeaderInfo) {
	copy(b[:32], info.Digest[:])
	byteOrder.PutUint32(b[32:36], info.ParentIndex)
	byteOrder.PutUint32(b[36:40], info.EpochStartIndex)
	byteOrder.PutUint32(b[40:44], info.Height)
}

// decodeInfo reads an info from b, which must be at least InfoSize bytes.
func decodeInfo(b []byte, info *HeaderInfo) {
	copy(info.Digest[:], b[:32])
	info.ParentIndex = byteOrder.Uint32(b[32:36])
	info.EpochStartIndex = byteOrder.Uint32(b[36:40])
	info.Height = byteOrder.Uint32(b[40:44])
}

// WriteInfo serializes a single record.
func WriteInfo(w io.Writer, info *HeaderInfo) error {
	var b [InfoSize]byte
	encodeInfo(b[:], info)

	_, err := w.Write(b[:])
	return err
}

// ReadInfo deserializes a single record written by WriteInfo.
func ReadInfo(r io.Reader, info *HeaderInfo) error {
	var b [InfoSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	decodeInfo(b[:], info)

	return nil
}

// encodedSize is the size of an encoded store with the given capacity.
func encodedSize(capacity uint32) uint64 {
	return 4 + 8 + uint64(capacity)*InfoSize
}

// EncodedSize returns the number of bytes Encode writes.
func (s *Store) EncodedSize() uint64 {
	return encodedSize(uint32(s.Capacity()))
}

// Encode serializes the store, including every physical slot, so that a
// decoded store assigns the same indices and retains the same records.
func (s *Store) Encode(w io.Writer) error {
	b := make([]byte, s.EncodedSize())

	byteOrder.PutUint32(b[0:4], uint32(s.Capacity()))
	byteOrder.PutUint64(b[4:12], s.buf.Total())

	offset := 12
	for _, info := range s.buf.Slots() {
		encodeInfo(b[offset:offset+InfoSize], &info)
		offset += InfoSize
	}

	_, err := w.Write(b)
	return err
}

// Decode reads a store previously written by Encode.
func Decode(r io.Reader) (*Store, error) {
	return decode(r, 0)
}

// DecodeSized reads a store that must occupy exactly size bytes. The size
// announced by the store header is checked before any slot is read.
func DecodeSized(r io.Reader, size uint64) (*Store, error) {
	if size == 0 {
		return nil, fmt.Errorf("empty header store")
	}

	return decode(r, size)
}

// decode reads an encoded store. A non-zero size must match the encoded
// size of the store.
func decode(r io.Reader, size uint64) (*Store, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	capacity := byteOrder.Uint32(hdr[0:4])
	total := byteOrder.Uint64(hdr[4:12])

	switch {
	case capacity == 0 || capacity > MaxCapacity:
		return nil, fmt.Errorf("invalid header store capacity %d",
			capacity)

	case total >= SentinelIndex:
		return nil, fmt.Errorf("invalid header store cursor %d", total)

	case size != 0 && encodedSize(capacity) != size:
		return nil, fmt.Errorf("header store of capacity %d does not "+
			"fit in %d bytes", capacity, size)
	}

	b := make([]byte, uint64(capacity)*InfoSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	slots := make([]HeaderInfo, capacity)
	for i := range slots {
		decodeInfo(b[i*InfoSize:(i+1)*InfoSize], &slots[i])
	}

	buf, err := queue.RestoreCircularBuffer(total, slots)
	if err != nil {
		return nil, err
	}

	return &Store{buf: buf}, nil
}
