package relay

import (
	"errors"
	"fmt"
	"io"

	"github.com/lightninglabs/spvrelay/headerstore"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	genesisType              tlv.Type = 0
	preGenesisEpochStartType tlv.Type = 2
	currentBestIndexType     tlv.Type = 4
	bestKnownDigestType      tlv.Type = 6
	lastReorgLCAType         tlv.Type = 8
	mainnetType              tlv.Type = 10
	headerStoreType          tlv.Type = 12
)

// ErrMissingHeaderStore is returned when a decoded snapshot carries no
// header store.
var ErrMissingHeaderStore = errors.New("relay snapshot missing header store")

// eHeaderInfo is a tlv encoder for a single header record.
func eHeaderInfo(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*headerstore.HeaderInfo); ok {
		return headerstore.WriteInfo(w, v)
	}

	return tlv.NewTypeForEncodingErr(val, "*headerstore.HeaderInfo")
}

// dHeaderInfo is a tlv decoder for a single header record.
func dHeaderInfo(r io.Reader, val interface{}, _ *[8]byte, l uint64) error {
	if v, ok := val.(*headerstore.HeaderInfo); ok &&
		l == headerstore.InfoSize {

		return headerstore.ReadInfo(r, v)
	}

	return tlv.NewTypeForDecodingErr(
		val, "*headerstore.HeaderInfo", l, headerstore.InfoSize,
	)
}

// eHeaderStore is a tlv encoder for a header store.
func eHeaderStore(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(**headerstore.Store); ok {
		return (*v).Encode(w)
	}

	return tlv.NewTypeForEncodingErr(val, "**headerstore.Store")
}

// dHeaderStore is a tlv decoder for a header store.
func dHeaderStore(r io.Reader, val interface{}, _ *[8]byte, l uint64) error {
	v, ok := val.(**headerstore.Store)
	if !ok {
		return tlv.NewTypeForDecodingErr(val, "**headerstore.Store", l, l)
	}

	store, err := headerstore.DecodeSized(io.LimitReader(r, int64(l)), l)
	if err != nil {
		return err
	}

	*v = store

	return nil
}

// records returns the tlv records of the relay snapshot.
func (r *Relay) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakeStaticRecord(
			genesisType, &r.genesis, headerstore.InfoSize,
			eHeaderInfo, dHeaderInfo,
		),
		tlv.MakePrimitiveRecord(
			preGenesisEpochStartType,
			(*[32]byte)(&r.preGenesisEpochStart),
		),
		tlv.MakePrimitiveRecord(
			currentBestIndexType, &r.currentBestIndex,
		),
		tlv.MakePrimitiveRecord(
			bestKnownDigestType, (*[32]byte)(&r.bestKnownDigest),
		),
		tlv.MakePrimitiveRecord(
			lastReorgLCAType, (*[32]byte)(&r.lastReorgLCA),
		),
		tlv.MakePrimitiveRecord(mainnetType, &r.mainnet),
		tlv.MakeDynamicRecord(
			headerStoreType, &r.headers, func() uint64 {
				return r.headers.EncodedSize()
			}, eHeaderStore, dHeaderStore,
		),
	}
}

// Encode writes a snapshot of the relay to w.
func (r *Relay) Encode(w io.Writer) error {
	stream, err := tlv.NewStream(r.records()...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Decode reads a relay snapshot written by Encode.
func Decode(rd io.Reader) (*Relay, error) {
	r := &Relay{}

	stream, err := tlv.NewStream(r.records()...)
	if err != nil {
		return nil, err
	}

	if err := stream.Decode(rd); err != nil {
		return nil, err
	}

	if r.headers == nil {
		return nil, ErrMissingHeaderStore
	}

	if _, err := r.headers.Lookup(r.currentBestIndex); err != nil {
		return nil, fmt.Errorf("invalid best index: %w", err)
	}

	return r, nil
}
