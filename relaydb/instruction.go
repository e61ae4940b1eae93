package relaydb

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvrelay/relay"
	"github.com/lightningnetwork/lnd/tlv"
)

// InstructionType identifies an encoded instruction.
type InstructionType uint8

const (
	// TypeInitialize identifies an Initialize instruction.
	TypeInitialize InstructionType = 0

	// TypeAddHeaders identifies an AddHeaders instruction.
	TypeAddHeaders InstructionType = 1

	// TypeAddDifficultyChange identifies an AddDifficultyChange
	// instruction.
	TypeAddDifficultyChange InstructionType = 2

	// TypeMarkNewHeaviest identifies a MarkNewHeaviest instruction.
	TypeMarkNewHeaviest InstructionType = 3

	// TypeOpenRequest identifies an OpenRequest instruction.
	TypeOpenRequest InstructionType = 4

	// TypeCloseRequest identifies a CloseRequest instruction.
	TypeCloseRequest InstructionType = 5
)

// String returns a human readable name of the instruction type.
func (t InstructionType) String() string {
	switch t {
	case TypeInitialize:
		return "Initialize"
	case TypeAddHeaders:
		return "AddHeaders"
	case TypeAddDifficultyChange:
		return "AddDifficultyChange"
	case TypeMarkNewHeaviest:
		return "MarkNewHeaviest"
	case TypeOpenRequest:
		return "OpenRequest"
	case TypeCloseRequest:
		return "CloseRequest"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Instruction is a state transition request processed by DB.Process.
type Instruction interface {
	// Type returns the type byte written ahead of the instruction.
	Type() InstructionType

	// records returns the tlv records of the instruction body.
	records() []tlv.Record
}

// Initialize creates the relay.
type Initialize struct {
	// Genesis is the raw header the relay starts from.
	Genesis []byte

	// Height is the height of Genesis.
	Height uint32

	// EpochStart is the digest of the first header of the epoch
	// containing Genesis.
	EpochStart chainhash.Hash

	// Mainnet selects main network target rules.
	Mainnet bool

	// Capacity is the number of header records retained. Zero selects the
	// default.
	Capacity uint32
}

// Type returns TypeInitialize.
func (i *Initialize) Type() InstructionType {
	return TypeInitialize
}

func (i *Initialize) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &i.Genesis),
		tlv.MakePrimitiveRecord(2, &i.Height),
		tlv.MakePrimitiveRecord(4, (*[32]byte)(&i.EpochStart)),
		tlv.MakePrimitiveRecord(6, &i.Mainnet),
		tlv.MakePrimitiveRecord(8, &i.Capacity),
	}
}

// AddHeaders extends a stored header with new headers of the same target.
type AddHeaders struct {
	// AnchorIndex is the store index of the anchor header.
	AnchorIndex uint32

	// Anchor is the raw anchor header.
	Anchor []byte

	// Headers is the tightly packed raw headers to add.
	Headers []byte
}

// Type returns TypeAddHeaders.
func (a *AddHeaders) Type() InstructionType {
	return TypeAddHeaders
}

func (a *AddHeaders) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &a.AnchorIndex),
		tlv.MakePrimitiveRecord(2, &a.Anchor),
		tlv.MakePrimitiveRecord(4, &a.Headers),
	}
}

// AddDifficultyChange extends the last header of an epoch with headers of
// the next epoch.
type AddDifficultyChange struct {
	// OldPeriodStart is the raw first header of the ending epoch.
	OldPeriodStart []byte

	// OldPeriodEndIndex is the store index of the last header of the
	// ending epoch.
	OldPeriodEndIndex uint32

	// OldPeriodEnd is the raw last header of the ending epoch.
	OldPeriodEnd []byte

	// Headers is the tightly packed raw headers to add.
	Headers []byte
}

// Type returns TypeAddDifficultyChange.
func (a *AddDifficultyChange) Type() InstructionType {
	return TypeAddDifficultyChange
}

func (a *AddDifficultyChange) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &a.OldPeriodStart),
		tlv.MakePrimitiveRecord(2, &a.OldPeriodEndIndex),
		tlv.MakePrimitiveRecord(4, &a.OldPeriodEnd),
		tlv.MakePrimitiveRecord(6, &a.Headers),
	}
}

// MarkNewHeaviest proposes a new best header.
type MarkNewHeaviest struct {
	// LCAIndex is the store index of the latest common ancestor of the
	// current and proposed best headers.
	LCAIndex uint32

	// CurrentBest is the raw current best header.
	CurrentBest []byte

	// NewBestIndex is the store index of the proposed best header.
	NewBestIndex uint32

	// NewBest is the raw proposed best header.
	NewBest []byte
}

// Type returns TypeMarkNewHeaviest.
func (m *MarkNewHeaviest) Type() InstructionType {
	return TypeMarkNewHeaviest
}

func (m *MarkNewHeaviest) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &m.LCAIndex),
		tlv.MakePrimitiveRecord(2, &m.CurrentBest),
		tlv.MakePrimitiveRecord(4, &m.NewBestIndex),
		tlv.MakePrimitiveRecord(6, &m.NewBest),
	}
}

// OpenRequest stores a new proof request. At least one of Spends and Pays
// must be set.
type OpenRequest struct {
	// Spends is the serialized outpoint the proven transaction must
	// spend, see SerializeOutPoint.
	Spends []byte

	// Pays is the output script the proven transaction must pay.
	Pays []byte

	// PaysValue is the smallest value the paying output may carry.
	PaysValue uint64

	// NumConfs is the number of confirmations a proof must carry.
	NumConfs uint8
}

// Type returns TypeOpenRequest.
func (o *OpenRequest) Type() InstructionType {
	return TypeOpenRequest
}

func (o *OpenRequest) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &o.Spends),
		tlv.MakePrimitiveRecord(2, &o.Pays),
		tlv.MakePrimitiveRecord(4, &o.PaysValue),
		tlv.MakePrimitiveRecord(6, &o.NumConfs),
	}
}

// CloseRequest deactivates a proof request.
type CloseRequest struct {
	// ID is the id of the request to close.
	ID uint64
}

// Type returns TypeCloseRequest.
func (c *CloseRequest) Type() InstructionType {
	return TypeCloseRequest
}

func (c *CloseRequest) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &c.ID),
	}
}

// newInstruction returns an empty instruction of the given type.
func newInstruction(t InstructionType) (Instruction, error) {
	switch t {
	case TypeInitialize:
		return &Initialize{}, nil
	case TypeAddHeaders:
		return &AddHeaders{}, nil
	case TypeAddDifficultyChange:
		return &AddDifficultyChange{}, nil
	case TypeMarkNewHeaviest:
		return &MarkNewHeaviest{}, nil
	case TypeOpenRequest:
		return &OpenRequest{}, nil
	case TypeCloseRequest:
		return &CloseRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownInstruction, t)
	}
}

// EncodeInstruction writes the type byte of instr followed by its tlv
// stream.
func EncodeInstruction(w io.Writer, instr Instruction) error {
	if _, err := w.Write([]byte{byte(instr.Type())}); err != nil {
		return err
	}

	stream, err := tlv.NewStream(instr.records()...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// DecodeInstruction reads an instruction written by EncodeInstruction.
func DecodeInstruction(r io.Reader) (Instruction, error) {
	var typ [1]byte
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return nil, err
	}

	instr, err := newInstruction(InstructionType(typ[0]))
	if err != nil {
		return nil, err
	}

	stream, err := tlv.NewStream(instr.records()...)
	if err != nil {
		return nil, err
	}

	if err := stream.Decode(r); err != nil {
		return nil, err
	}

	return instr, nil
}

// apply runs an update instruction against r.
func apply(r *relay.Relay, instr Instruction) error {
	switch i := instr.(type) {
	case *AddHeaders:
		return r.AddHeaders(i.AnchorIndex, i.Anchor, i.Headers, false)

	case *AddDifficultyChange:
		return r.AddDifficultyChange(
			i.OldPeriodStart, i.OldPeriodEndIndex, i.OldPeriodEnd,
			i.Headers,
		)

	case *MarkNewHeaviest:
		return r.MarkNewHeaviest(
			i.LCAIndex, i.CurrentBest, i.NewBestIndex, i.NewBest,
		)

	case *Initialize:
		return ErrAlreadyInit

	default:
		return fmt.Errorf("%w: %T", ErrUnknownInstruction, instr)
	}
}
