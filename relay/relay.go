// Package relay implements a bounded Bitcoin header relay. It tracks recent
// header metadata, validates chain extensions and difficulty retargets,
// selects the heaviest tip and verifies transaction inclusion proofs against
// it.
package relay

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/headerstore"
)

const (
	// EpochLength is the number of headers sharing one difficulty target.
	EpochLength = 2016

	// MaxReorgWalk is the number of parent links followed from each tip
	// when verifying a claimed latest common ancestor. Reorgs deeper than
	// this are rejected.
	MaxReorgWalk = 200

	// MaxProofDepth is the largest distance between a confirming header
	// and the best header for which proofs are validated.
	MaxProofDepth = EpochLength
)

// config holds the tunables of a new relay.
type config struct {
	capacity int
}

// Option configures a new relay.
type Option func(*config)

// WithCapacity sets the number of header records the relay retains.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		c.capacity = capacity
	}
}

// Relay is the relay state. A Relay is always initialized; the zero value is
// not usable.
type Relay struct {
	// genesis is the record of the header the relay was started from.
	genesis headerstore.HeaderInfo

	// preGenesisEpochStart is the digest of the first header of the
	// genesis header's difficulty epoch.
	preGenesisEpochStart chainhash.Hash

	// currentBestIndex is the store index of the best known header.
	currentBestIndex uint32

	// bestKnownDigest is the digest of the best known header.
	bestKnownDigest chainhash.Hash

	// lastReorgLCA is the latest common ancestor of the last tip update.
	lastReorgLCA chainhash.Hash

	// headers holds the metadata of all retained headers.
	headers *headerstore.Store

	// mainnet relaxes the target check of retarget extensions.
	mainnet bool
}

// New creates a relay rooted at the given genesis header. The genesis digest
// must end in four zero bytes. epochStart is the digest of the first header
// of the genesis header's difficulty epoch.
func New(genesisHeader []byte, genesisHeight uint32,
	epochStart chainhash.Hash, mainnet bool, opts ...Option) (*Relay,
	error) {

	cfg := &config{
		capacity: headerstore.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.capacity < 2 {
		return nil, fmt.Errorf("capacity must be at least 2, got %d",
			cfg.capacity)
	}

	genesis, err := btcspv.ParseHeader(genesisHeader)
	if err != nil {
		return nil, err
	}

	digest := genesis.Digest()
	if digest[28] != 0 || digest[29] != 0 || digest[30] != 0 ||
		digest[31] != 0 {

		return nil, fmt.Errorf("%w: genesis %v",
			btcspv.ErrInsufficientWork, digest)
	}

	headers, err := headerstore.NewStore(cfg.capacity)
	if err != nil {
		return nil, err
	}

	epochStartInfo := headerstore.HeaderInfo{
		Digest:          epochStart,
		ParentIndex:     headerstore.SentinelIndex,
		EpochStartIndex: 0,
		Height:          genesisHeight - genesisHeight%EpochLength,
	}
	genesisInfo := headerstore.HeaderInfo{
		Digest:          digest,
		ParentIndex:     headerstore.SentinelIndex,
		EpochStartIndex: 0,
		Height:          genesisHeight,
	}

	headers.Push(epochStartInfo)
	genesisIndex := headers.Push(genesisInfo)

	log.Infof("Initialized relay at genesis %v (height=%d, "+
		"epoch_start=%v, mainnet=%v, capacity=%d)", digest,
		genesisHeight, epochStart, mainnet, cfg.capacity)

	return &Relay{
		genesis:              genesisInfo,
		preGenesisEpochStart: epochStart,
		currentBestIndex:     genesisIndex,
		bestKnownDigest:      digest,
		lastReorgLCA:         digest,
		headers:              headers,
		mainnet:              mainnet,
	}, nil
}

// lookup returns the record at a caller supplied index.
func (r *Relay) lookup(index uint32) (headerstore.HeaderInfo, error) {
	return r.headers.Lookup(index)
}

// loadHeader parses raw and checks that it is the header recorded at index.
func (r *Relay) loadHeader(index uint32, raw []byte) (*btcspv.Header,
	headerstore.HeaderInfo, error) {

	info, err := r.lookup(index)
	if err != nil {
		return nil, info, err
	}

	header, err := btcspv.ParseHeader(raw)
	if err != nil {
		return nil, info, err
	}

	if header.Digest() != info.Digest {
		return nil, info, fmt.Errorf("%w: index %d holds %v, got %v",
			btcspv.ErrWrongDigest, index, info.Digest,
			header.Digest())
	}

	return header, info, nil
}

// AddHeaders extends the chain at the record at anchorIndex, whose raw
// header is anchorRaw, with the concatenated headers in headersRaw. Unless
// internal is set on a mainnet relay, the first new header must keep the
// anchor's target.
func (r *Relay) AddHeaders(anchorIndex uint32, anchorRaw, headersRaw []byte,
	internal bool) error {

	anchor, anchorInfo, err := r.loadHeader(anchorIndex, anchorRaw)
	if err != nil {
		return err
	}

	headers, err := btcspv.ParseHeaderArray(headersRaw)
	if err != nil {
		return err
	}

	return r.addHeaders(anchorIndex, anchor, anchorInfo, headers, internal)
}

// addHeaders validates parsed headers against a loaded anchor and attaches
// them to the store.
func (r *Relay) addHeaders(anchorIndex uint32, anchor *btcspv.Header,
	anchorInfo headerstore.HeaderInfo, headers btcspv.HeaderArray,
	internal bool) error {

	first := headers[0]
	if !(internal && r.mainnet) &&
		first.Target().Cmp(anchor.Target()) != 0 {

		return fmt.Errorf("%w: bits %08x after anchor bits %08x",
			ErrUnexpectedDifficultyChange, first.Bits(),
			anchor.Bits())
	}

	if first.ParentDigest() != anchorInfo.Digest {
		return fmt.Errorf("%w: first header does not extend anchor %v",
			btcspv.ErrInvalidChain, anchorInfo.Digest)
	}

	if err := headers.ValidateChain(true); err != nil {
		return err
	}

	// The best header must stay retained once the new records are
	// stored.
	end := uint64(r.headers.Next()) + uint64(len(headers))
	capacity := uint64(r.headers.Capacity())
	if end > capacity && uint64(r.currentBestIndex) < end-capacity {
		return fmt.Errorf("%w: %d headers with best index %d and "+
			"capacity %d", ErrWouldEvictBest, len(headers),
			r.currentBestIndex, capacity)
	}

	r.attach(anchorIndex, anchorInfo, headers)

	return nil
}

// attach appends a record for each validated header. A record at a height
// one past an epoch boundary starts a new epoch at its parent, every other
// record inherits its parent's epoch start.
func (r *Relay) attach(anchorIndex uint32, anchor headerstore.HeaderInfo,
	headers btcspv.HeaderArray) {

	var (
		parentIndex = anchorIndex
		parent      = anchor
		added       = make([]headerstore.HeaderInfo, 0, len(headers))
	)
	for _, h := range headers {
		info := headerstore.HeaderInfo{
			Digest:          h.Digest(),
			ParentIndex:     parentIndex,
			EpochStartIndex: parent.EpochStartIndex,
			Height:          parent.Height + 1,
		}
		if info.Height%EpochLength == 1 {
			info.EpochStartIndex = parentIndex
		}

		parentIndex = r.headers.Push(info)
		parent = info
		added = append(added, info)
	}

	log.Debugf("Attached %d headers to %v, last %v at index %d",
		len(headers), anchor, parent, parentIndex)
	log.Tracef("Attached records: %v", newLogClosure(func() string {
		return spew.Sdump(added)
	}))
}

// AddDifficultyChange extends the chain at the last header of an epoch with
// headers of the following epoch. startRaw is the first header of the
// finished epoch and endRaw, recorded at endIndex, its last. The first new
// header's target must be a truncation of the retarget computed from the
// finished epoch.
func (r *Relay) AddDifficultyChange(startRaw []byte, endIndex uint32,
	endRaw, headersRaw []byte) error {

	headers, err := btcspv.ParseHeaderArray(headersRaw)
	if err != nil {
		return err
	}

	end, endInfo, err := r.loadHeader(endIndex, endRaw)
	if err != nil {
		return err
	}

	start, startInfo, err := r.loadHeader(endInfo.EpochStartIndex, startRaw)
	if err != nil {
		return err
	}

	if endInfo.Height%EpochLength != EpochLength-1 {
		return fmt.Errorf("%w: height %d does not end an epoch",
			ErrUnexpectedDifficultyChange, endInfo.Height)
	}

	if startInfo.Height != endInfo.Height-(EpochLength-1) {
		panic(fmt.Sprintf("epoch of %v starts at %v", endInfo,
			startInfo))
	}
	if start.Target().Cmp(end.Target()) != 0 {
		panic(fmt.Sprintf("epoch from %v to %v changes target",
			startInfo, endInfo))
	}

	expected := btcspv.Retarget(
		start.Target(), start.Timestamp(), end.Timestamp(),
	)

	// Header targets are compact encodings, so the new target is only
	// required to be a truncation of the exact retarget value.
	newTarget := headers[0].Target()
	masked := new(big.Int).And(newTarget, expected)
	if masked.Cmp(newTarget) != 0 {
		return fmt.Errorf("%w: bits %08x, expected target %064x",
			ErrIncorrectDifficultyChange, headers[0].Bits(),
			expected)
	}

	log.Infof("Accepted difficulty change after height %d: bits %08x",
		endInfo.Height, headers[0].Bits())

	return r.addHeaders(endIndex, end, endInfo, headers, true)
}

// MarkNewHeaviest makes the header at newBestIndex the best known header if
// it is heavier than the current best header. currentBestRaw and newBestRaw
// are the raw headers of both tips, and lcaIndex holds their latest common
// ancestor.
func (r *Relay) MarkNewHeaviest(lcaIndex uint32, currentBestRaw []byte,
	newBestIndex uint32, newBestRaw []byte) error {

	newBest, newBestInfo, err := r.loadHeader(newBestIndex, newBestRaw)
	if err != nil {
		return err
	}

	currentBest, currentBestInfo, err := r.loadHeader(
		r.currentBestIndex, currentBestRaw,
	)
	if err != nil {
		return err
	}

	ancestor, err := r.lookup(lcaIndex)
	if err != nil {
		return err
	}

	err = r.verifyBetterDescendant(
		ancestor, currentBest, currentBestInfo, newBest, newBestInfo,
	)
	if err != nil {
		return err
	}

	log.Infof("New best header %v at index %d replaces %v, lca %v",
		newBestInfo, newBestIndex, currentBestInfo, ancestor)

	r.lastReorgLCA = ancestor.Digest
	r.bestKnownDigest = newBestInfo.Digest
	r.currentBestIndex = newBestIndex

	return nil
}

// walkBack follows parent links from info toward target for at most
// MaxReorgWalk hops. It returns the record it stopped at and the record
// visited just before it, which is info itself if no link was followed. The
// walk also stops at bootstrap records and records that are not retained.
func (r *Relay) walkBack(info, target headerstore.HeaderInfo) (child,
	reached headerstore.HeaderInfo) {

	child, reached = info, info
	for i := 0; i < MaxReorgWalk && reached != target; i++ {
		if reached.IsBootstrap() {
			break
		}

		parent, err := r.headers.Lookup(reached.ParentIndex)
		if err != nil {
			break
		}

		child, reached = reached, parent
	}

	return child, reached
}

// verifyBetterDescendant returns nil if right is a better tip than left,
// where both descend from ancestor.
func (r *Relay) verifyBetterDescendant(ancestor headerstore.HeaderInfo,
	left *btcspv.Header, leftInfo headerstore.HeaderInfo,
	right *btcspv.Header, rightInfo headerstore.HeaderInfo) error {

	if ancestor.Digest == leftInfo.Digest &&
		ancestor.Digest == rightInfo.Digest {

		return ErrNotHeavier
	}

	leftChild, leftReached := r.walkBack(leftInfo, ancestor)
	rightChild, rightReached := r.walkBack(rightInfo, ancestor)

	switch {
	// Both tips share a record below the ancestor, so a later common
	// ancestor exists.
	case leftChild == rightChild:
		return fmt.Errorf("%w: tips meet at %v", ErrNotLatestAncestor,
			leftChild)

	case leftReached != ancestor || rightReached != ancestor:
		return fmt.Errorf("%w: %v not found within %d headers",
			ErrNotLatestAncestor, ancestor, MaxReorgWalk)
	}

	nextEpochStart := ancestor.Height + EpochLength -
		ancestor.Height%EpochLength
	leftInEpoch := leftInfo.Height < nextEpochStart
	rightInEpoch := rightInfo.Height < nextEpochStart

	switch {
	// A tip that reached the next epoch beats one that did not.
	case !leftInEpoch && rightInEpoch:
		return fmt.Errorf("%w: current tip is in a later epoch",
			ErrNotHeavier)

	case leftInEpoch && !rightInEpoch:
		return nil

	// Within the ancestor's epoch all headers share a target.
	case leftInEpoch && rightInEpoch:
		if rightInfo.Height > leftInfo.Height {
			return nil
		}

		return fmt.Errorf("%w: height %d does not exceed %d",
			ErrNotHeavier, rightInfo.Height, leftInfo.Height)
	}

	leftWeight := epochWeight(leftInfo, left)
	rightWeight := epochWeight(rightInfo, right)
	if rightWeight.Cmp(leftWeight) > 0 {
		return nil
	}

	return fmt.Errorf("%w: weight %v does not exceed %v", ErrNotHeavier,
		rightWeight, leftWeight)
}

// epochWeight approximates the work accumulated in a header's epoch as its
// position in the epoch times its integer difficulty. Targets easier than
// difficulty 1 weigh nothing.
func epochWeight(info headerstore.HeaderInfo, h *btcspv.Header) *big.Int {
	position := big.NewInt(int64(info.Height % EpochLength))
	return position.Mul(position, h.Difficulty())
}

// ValidateProof checks that proof is valid and that its confirming header,
// recorded at confirmingIndex, is an ancestor of the best header. It returns
// the number of confirmations, counting both ends.
func (r *Relay) ValidateProof(confirmingIndex uint32,
	proof *btcspv.Proof) (uint32, error) {

	if err := proof.Validate(); err != nil {
		return 0, err
	}

	header, err := r.lookup(confirmingIndex)
	if err != nil {
		return 0, err
	}
	tip := r.headers.Read(r.currentBestIndex)

	if header.Height > tip.Height {
		return 0, fmt.Errorf("%w: height %d above tip %d",
			ErrNotInBestChain, header.Height, tip.Height)
	}

	depth := tip.Height - header.Height
	if depth > MaxProofDepth {
		return 0, fmt.Errorf("%w: %d headers below tip", ErrTooDeep,
			depth)
	}

	if header.Digest != proof.ConfirmingHeader.Hash {
		return 0, fmt.Errorf("%w: index %d holds %v, proof claims %v",
			btcspv.ErrWrongDigest, confirmingIndex, header.Digest,
			proof.ConfirmingHeader.Hash)
	}

	ancestor, err := r.headers.LookupAncestor(tip, depth)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrNotInBestChain, err)

	case ancestor.Digest != header.Digest:
		return 0, fmt.Errorf("%w: best chain has %v at height %d",
			ErrNotInBestChain, ancestor.Digest, ancestor.Height)
	}

	return depth + 1, nil
}
