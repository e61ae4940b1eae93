package btcspv

import (
	"bytes"
	"fmt"
	"math/big"
)

// retargetPeriod is the intended duration of one difficulty epoch.
const retargetPeriod = 14 * 24 * 60 * 60

// HeaderArray is a contiguous run of headers.
type HeaderArray []*Header

// ParseHeaderArray parses a non-empty concatenation of 80 byte headers.
func ParseHeaderArray(b []byte) (HeaderArray, error) {
	if len(b) == 0 || len(b)%HeaderSize != 0 {
		return nil, fmt.Errorf("%w: header array of %d bytes",
			ErrWrongLengthHeader, len(b))
	}

	headers := make(HeaderArray, 0, len(b)/HeaderSize)
	for offset := 0; offset < len(b); offset += HeaderSize {
		h, err := ParseHeader(b[offset : offset+HeaderSize])
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}

	return headers, nil
}

// Serialize returns the concatenated raw headers.
func (a HeaderArray) Serialize() []byte {
	var b bytes.Buffer
	for _, h := range a {
		b.Write(h.raw[:])
	}

	return b.Bytes()
}

// ValidateChain checks that every header references the digest of the header
// before it and shares its target, and that every header meets its own
// target if checkPoW is set. A retarget can only happen at the first header.
func (a HeaderArray) ValidateChain(checkPoW bool) error {
	for i, h := range a {
		if i > 0 && h.ParentDigest() != a[i-1].Digest() {
			return fmt.Errorf("%w: header %d (%v)", ErrInvalidChain,
				i, h.Digest())
		}
		if i > 0 && h.Bits() != a[i-1].Bits() {
			return fmt.Errorf("%w: header %d bits %08x after %08x",
				ErrUnexpectedDifficultyChange, i, h.Bits(),
				a[i-1].Bits())
		}

		if !checkPoW {
			continue
		}
		if err := h.CheckProofOfWork(); err != nil {
			return fmt.Errorf("header %d: %w", i, err)
		}
	}

	return nil
}

// Retarget computes the target of the epoch following one that started at
// startTime with startTarget and ended at endTime. The elapsed time is
// clamped to a factor of four around the two week period.
func Retarget(startTarget *big.Int, startTime, endTime uint32) *big.Int {
	elapsed := int64(endTime) - int64(startTime)

	switch {
	case elapsed < retargetPeriod/4:
		elapsed = retargetPeriod / 4

	case elapsed > retargetPeriod*4:
		elapsed = retargetPeriod * 4
	}

	target := new(big.Int).Mul(startTarget, big.NewInt(elapsed))
	return target.Div(target, big.NewInt(retargetPeriod))
}
