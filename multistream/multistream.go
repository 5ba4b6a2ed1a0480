// Package multistream implements the multistream-select identifier
// exchange (spec §4.2): agree on the multistream version, then
// negotiate successive sub-protocol identifiers over the same framed
// byte stream.
package multistream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gosuda/p2pcore/frame"
)

// ProtocolVersion is the fixed multistream identifier both sides
// exchange before any sub-protocol negotiation begins.
const ProtocolVersion = "/multistream/1.0.0\n"

var (
	// ErrMismatch is returned when the peer's echoed identifier does
	// not equal the one we proposed.
	ErrMismatch = errors.New("multistream: protocol identifier mismatch")
	// ErrNotMultistream is returned by Dial when the first
	// identifier read back does not contain "multistream".
	ErrNotMultistream = errors.New("multistream: peer did not speak multistream")
)

// Negotiator exchanges protocol identifiers over a varint-framed byte
// stream. Both the version handshake and every subsequent sub-protocol
// negotiation use the same write-then-verify-echo shape (spec §4.2:
// "symmetric: both sides write their chosen identifier and verify the
// echo").
type Negotiator struct {
	codec *frame.VarintCodec
}

// New wraps a varint codec for multistream negotiation. Both listener
// and dialer use the same type; only the call sequence differs.
func New(codec *frame.VarintCodec) *Negotiator {
	return &Negotiator{codec: codec}
}

// Listen performs the responder side of the multistream version
// handshake: write our version, read and verify the peer's echo.
func (n *Negotiator) Listen() error {
	return n.exchange(ProtocolVersion)
}

// Dial performs the initiator side, per spec §4.2's client-side helper:
// read the peer's identifier first (server sends first), verify it
// contains "multistream", then write our own.
func (n *Negotiator) Dial() error {
	got, err := n.codec.Read()
	if err != nil {
		return fmt.Errorf("multistream: dial: read version: %w", err)
	}
	if !strings.Contains(string(got), "multistream") {
		return ErrNotMultistream
	}
	if _, err := n.codec.Write([]byte(ProtocolVersion)); err != nil {
		return fmt.Errorf("multistream: dial: write version: %w", err)
	}
	return nil
}

// Select negotiates a sub-protocol identifier: write the proposed id,
// read the peer's response, and succeed only if it equals the
// proposal (spec §4.2).
func (n *Negotiator) Select(protocolID protocol.ID) error {
	return n.exchange(string(protocolID))
}

// Respond performs the listener's half of sub-protocol negotiation: it
// reads the peer's proposed identifier, echoes it back verbatim if
// accept returns true, and returns the identifier along with whether
// it was accepted.
func (n *Negotiator) Respond(accept func(protocolID protocol.ID) bool) (protocol.ID, bool, error) {
	got, err := n.codec.Read()
	if err != nil {
		return "", false, fmt.Errorf("multistream: respond: read: %w", err)
	}
	id := protocol.ID(got)
	if !accept(id) {
		return id, false, nil
	}
	if _, err := n.codec.Write(got); err != nil {
		return "", false, fmt.Errorf("multistream: respond: write echo: %w", err)
	}
	return id, true, nil
}

// exchange writes id as one frame and expects the same id echoed back
// as the next frame.
func (n *Negotiator) exchange(id string) error {
	if _, err := n.codec.Write([]byte(id)); err != nil {
		return fmt.Errorf("multistream: write %q: %w", id, err)
	}
	got, err := n.codec.Read()
	if err != nil {
		return fmt.Errorf("multistream: read echo of %q: %w", id, err)
	}
	if string(got) != id {
		return fmt.Errorf("%w: sent %q, got %q", ErrMismatch, id, got)
	}
	return nil
}
