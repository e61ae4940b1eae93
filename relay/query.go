package relay

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvrelay/headerstore"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// GenesisDigest returns the digest of the header the relay started from.
func (r *Relay) GenesisDigest() chainhash.Hash {
	return r.genesis.Digest
}

// Genesis returns the record of the header the relay started from.
func (r *Relay) Genesis() headerstore.HeaderInfo {
	return r.genesis
}

// PreGenesisEpochStart returns the digest of the first header of the
// genesis header's epoch.
func (r *Relay) PreGenesisEpochStart() chainhash.Hash {
	return r.preGenesisEpochStart
}

// BestKnownDigest returns the digest of the best known header.
func (r *Relay) BestKnownDigest() chainhash.Hash {
	return r.bestKnownDigest
}

// LastReorgLCA returns the latest common ancestor of the last tip update.
func (r *Relay) LastReorgLCA() chainhash.Hash {
	return r.lastReorgLCA
}

// CurrentBestIndex returns the store index of the best known header.
func (r *Relay) CurrentBestIndex() uint32 {
	return r.currentBestIndex
}

// Mainnet reports whether the relay follows the main network.
func (r *Relay) Mainnet() bool {
	return r.mainnet
}

// Tip returns the record of the best known header.
func (r *Relay) Tip() headerstore.HeaderInfo {
	return r.headers.Read(r.currentBestIndex)
}

// Capacity returns the number of header records the relay retains.
func (r *Relay) Capacity() int {
	return r.headers.Capacity()
}

// NextIndex returns the index the next accepted header will receive.
func (r *Relay) NextIndex() uint32 {
	return r.headers.Next()
}

// Header returns the record at index.
func (r *Relay) Header(index uint32) (headerstore.HeaderInfo, error) {
	return r.lookup(index)
}

// FindHeader returns the index of the newest retained record with the given
// digest.
func (r *Relay) FindHeader(digest chainhash.Hash) fn.Option[uint32] {
	return r.headers.FindByDigest(digest)
}

// IsAncestor reports whether the header with digest ancestor is found within
// limit parent links of the record at descendantIndex. A record counts as its
// own ancestor.
func (r *Relay) IsAncestor(descendantIndex uint32, ancestor chainhash.Hash,
	limit uint32) (bool, error) {

	current, err := r.lookup(descendantIndex)
	if err != nil {
		return false, err
	}

	for i := uint32(0); ; i++ {
		if current.Digest == ancestor {
			return true, nil
		}
		if i == limit || current.IsBootstrap() {
			return false, nil
		}

		current, err = r.headers.Lookup(current.ParentIndex)
		if err != nil {
			return false, nil
		}
	}
}
