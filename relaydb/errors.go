package relaydb

import (
	"errors"

	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/headerstore"
	"github.com/lightninglabs/spvrelay/relay"
)

var (
	// ErrNotYetInit is returned when an update instruction is processed
	// before the relay has been initialized.
	ErrNotYetInit = errors.New("relay not yet initialized")

	// ErrAlreadyInit is returned when Initialize is processed for a relay
	// that already exists.
	ErrAlreadyInit = errors.New("relay already initialized")

	// ErrInsufficientStateSpace is returned when the updated relay state
	// does not fit in the configured state size.
	ErrInsufficientStateSpace = errors.New("insufficient state space")

	// ErrUnknownInstruction is returned when decoding an instruction with
	// an unknown type byte.
	ErrUnknownInstruction = errors.New("unknown instruction type")

	// ErrUnknownStateKind is returned when the stored state carries an
	// unknown kind byte.
	ErrUnknownStateKind = errors.New("unknown relay state kind")
)

// ErrorCode is the numeric code reported for a failed instruction.
type ErrorCode uint32

const (
	CodeNotYetInit                 ErrorCode = 0
	CodeAlreadyInit                ErrorCode = 1
	CodeInsufficientStateSpace     ErrorCode = 2
	CodeIncorrectDifficultyChange  ErrorCode = 3
	CodeNotHeavier                 ErrorCode = 4
	CodeNotLatestAncestor          ErrorCode = 5
	CodeNotInBestChain             ErrorCode = 6
	CodeTooDeep                    ErrorCode = 7
	CodeWrongLengthHeader          ErrorCode = 15
	CodeUnexpectedDifficultyChange ErrorCode = 16
	CodeInsufficientWork           ErrorCode = 17
	CodeInvalidChain               ErrorCode = 18
	CodeWrongDigest                ErrorCode = 19
	CodeWrongMerkleRoot            ErrorCode = 20
	CodeWrongPrevHash              ErrorCode = 21
	CodeInvalidTx                  ErrorCode = 22
	CodeWrongTxID                  ErrorCode = 24
	CodeBadMerkleProof             ErrorCode = 25
	CodeUnknownError               ErrorCode = 27
	CodeUnknownIndex               ErrorCode = 28
	CodeNotRetained                ErrorCode = 29
	CodeWouldEvictBest             ErrorCode = 30
	CodeUnknownInstruction         ErrorCode = 31

	CodeUnknownRequest  ErrorCode = 601
	CodeSpendsLength    ErrorCode = 602
	CodePaysLength      ErrorCode = 603
	CodeInvalidVin      ErrorCode = 604
	CodeInvalidVout     ErrorCode = 605
	CodeClosedRequest   ErrorCode = 606
	CodeRequestPays     ErrorCode = 607
	CodeRequestValue    ErrorCode = 608
	CodeRequestSpends   ErrorCode = 609
	CodeNotEnoughConfs  ErrorCode = 611
	CodeNonStandardPays ErrorCode = 613
	CodeNoRequest       ErrorCode = 614
)

// errorCodes maps sentinel errors to their codes. Wrapped errors match too.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrNotYetInit, CodeNotYetInit},
	{ErrAlreadyInit, CodeAlreadyInit},
	{ErrInsufficientStateSpace, CodeInsufficientStateSpace},
	{relay.ErrIncorrectDifficultyChange, CodeIncorrectDifficultyChange},
	{relay.ErrNotHeavier, CodeNotHeavier},
	{relay.ErrNotLatestAncestor, CodeNotLatestAncestor},
	{relay.ErrNotInBestChain, CodeNotInBestChain},
	{relay.ErrTooDeep, CodeTooDeep},
	{btcspv.ErrWrongLengthHeader, CodeWrongLengthHeader},
	{relay.ErrUnexpectedDifficultyChange, CodeUnexpectedDifficultyChange},
	{btcspv.ErrInsufficientWork, CodeInsufficientWork},
	{btcspv.ErrInvalidChain, CodeInvalidChain},
	{btcspv.ErrWrongDigest, CodeWrongDigest},
	{btcspv.ErrWrongMerkleRoot, CodeWrongMerkleRoot},
	{btcspv.ErrWrongPrevHash, CodeWrongPrevHash},
	{btcspv.ErrInvalidTx, CodeInvalidTx},
	{btcspv.ErrWrongTxID, CodeWrongTxID},
	{btcspv.ErrBadMerkleProof, CodeBadMerkleProof},
	{headerstore.ErrUnknownIndex, CodeUnknownIndex},
	{headerstore.ErrNotRetained, CodeNotRetained},
	{relay.ErrWouldEvictBest, CodeWouldEvictBest},
	{ErrUnknownInstruction, CodeUnknownInstruction},
	{ErrUnknownRequest, CodeUnknownRequest},
	{ErrSpendsLength, CodeSpendsLength},
	{ErrPaysLength, CodePaysLength},
	{ErrInvalidVin, CodeInvalidVin},
	{ErrInvalidVout, CodeInvalidVout},
	{ErrClosedRequest, CodeClosedRequest},
	{ErrRequestPays, CodeRequestPays},
	{ErrRequestValue, CodeRequestValue},
	{ErrRequestSpends, CodeRequestSpends},
	{ErrNotEnoughConfs, CodeNotEnoughConfs},
	{ErrNonStandardPays, CodeNonStandardPays},
	{ErrNoRequest, CodeNoRequest},
}

// CodeOf returns the code reported for err. Errors without a dedicated code
// map to CodeUnknownError.
func CodeOf(err error) ErrorCode {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeUnknownError
}
