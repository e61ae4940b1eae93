package relay

import (
	"errors"

	"github.com/lightninglabs/spvrelay/btcspv"
)

var (
	// ErrUnexpectedDifficultyChange is returned when headers change the
	// target outside of a difficulty change, or when a difficulty change
	// is requested at a height that does not end an epoch.
	ErrUnexpectedDifficultyChange = btcspv.ErrUnexpectedDifficultyChange

	// ErrIncorrectDifficultyChange is returned when the first header of a
	// new epoch does not carry the retargeted difficulty.
	ErrIncorrectDifficultyChange = errors.New("incorrect difficulty " +
		"change")

	// ErrNotHeavier is returned when a proposed tip does not beat the
	// current best header.
	ErrNotHeavier = errors.New("new best header is not heavier")

	// ErrNotLatestAncestor is returned when the supplied ancestor is not
	// the latest common ancestor of the current and proposed tips.
	ErrNotLatestAncestor = errors.New("ancestor is not the latest " +
		"common ancestor")

	// ErrNotInBestChain is returned when a proof's confirming header is
	// not an ancestor of the current best header.
	ErrNotInBestChain = errors.New("header not in best chain")

	// ErrTooDeep is returned when a proof's confirming header is deeper
	// than the relay serves.
	ErrTooDeep = errors.New("header too deep in best chain")

	// ErrWouldEvictBest is returned when storing new headers would
	// overwrite the record of the best known header.
	ErrWouldEvictBest = errors.New("headers would overwrite best header")
)
