package relaydb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lightninglabs/spvrelay/relay"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// StateKind is the first byte of the stored state.
type StateKind uint8

const (
	// KindUninitialized marks a state that holds no relay yet.
	KindUninitialized StateKind = 0

	// KindActive marks a state holding a relay snapshot.
	KindActive StateKind = 1
)

// State is the persisted relay state: either uninitialized or an active
// relay.
type State struct {
	relay fn.Option[*relay.Relay]
}

// Uninitialized returns a state without a relay.
func Uninitialized() *State {
	return &State{relay: fn.None[*relay.Relay]()}
}

// Active returns a state holding r.
func Active(r *relay.Relay) *State {
	return &State{relay: fn.Some(r)}
}

// Kind returns the kind of the state.
func (s *State) Kind() StateKind {
	if s.relay.IsNone() {
		return KindUninitialized
	}

	return KindActive
}

// Relay returns the relay of an active state, or ErrNotYetInit.
func (s *State) Relay() (*relay.Relay, error) {
	return s.relay.UnwrapOrErr(ErrNotYetInit)
}

// Encode writes the kind byte followed by the relay snapshot, if any.
func (s *State) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(s.Kind())}); err != nil {
		return err
	}

	return fn.MapOptionZ(s.relay, func(r *relay.Relay) error {
		return r.Encode(w)
	})
}

// Bytes returns the encoded state.
func (s *State) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if err := s.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// DecodeState reads a state written by Encode. An empty input is an
// uninitialized state.
func DecodeState(b []byte) (*State, error) {
	if len(b) == 0 {
		return Uninitialized(), nil
	}

	switch StateKind(b[0]) {
	case KindUninitialized:
		return Uninitialized(), nil

	case KindActive:
		r, err := relay.Decode(bytes.NewReader(b[1:]))
		if err != nil {
			return nil, fmt.Errorf("unable to decode relay: %w",
				err)
		}

		return Active(r), nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStateKind, b[0])
	}
}
