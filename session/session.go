// Package session implements the Connection Session (spec §3): the
// object that owns one byte-stream connection's lifecycle end to end —
// multistream negotiation, secio handshake, and the dynamic dispatch
// between the plaintext and Secure Channel framings that follows it.
package session

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gosuda/p2pcore/dispatch"
	"github.com/gosuda/p2pcore/frame"
	"github.com/gosuda/p2pcore/keys"
	"github.com/gosuda/p2pcore/multistream"
	"github.com/gosuda/p2pcore/peerstore"
	"github.com/gosuda/p2pcore/secio"
	"github.com/gosuda/p2pcore/secureconn"
)

// SecioProtocolID is the sub-protocol identifier that selects the
// Secio Handshake out of the Protocol Dispatcher's handler list (spec
// §6: "/ipfs/secio/1.0.0\n").
const SecioProtocolID protocol.ID = "/ipfs/secio/1.0.0\n"

// DefaultHandshakeTimeout bounds every blocking read during
// negotiation and the secio handshake (spec §5: "a per-read timeout,
// default 5 seconds, configurable").
const DefaultHandshakeTimeout = 5 * time.Second

// Channel is the active read/write path a Session dispatches frames
// through. A Session has no active Channel until the secio handshake
// completes, and its Write and Read fail until then; afterwards it is
// the installed Secure Channel. The handshake itself uses the plaintext
// and varint codecs directly rather than a Channel.
type Channel interface {
	Write(payload []byte) (int, error)
	Read() ([]byte, error)
}

// Session ties one negotiated byte stream to its negotiation state,
// its active Channel, and (once the handshake completes) the secio
// result. Per spec §5, the handshake owns the session exclusively
// until it finishes; callers must not read or write concurrently with
// Dial or Listen.
type Session struct {
	conn     net.Conn
	signer   keys.Signer
	store    *peerstore.Store
	dispatch *dispatch.Dispatcher

	active Channel

	RemotePeerID    peer.ID
	RemotePublicKey keys.PublicKey
	Established     bool

	// HandshakeTimeout overrides DefaultHandshakeTimeout when set.
	HandshakeTimeout time.Duration
}

// New wraps a raw connection. The caller supplies the long-term
// identity (signer) and the shared peer-store; both are read-only or
// externally serialized per spec §5's shared-resource policy.
func New(conn net.Conn, signer keys.Signer, store *peerstore.Store) *Session {
	d := dispatch.New()
	s := &Session{conn: conn, signer: signer, store: store, dispatch: d}
	d.Register(&secioHandler{session: s})
	return s
}

// Dial runs the initiator side of the full stack: multistream version
// handshake, sub-protocol selection of secio, then the secio handshake
// itself. On success s.active is the installed Secure Channel.
func (s *Session) Dial(ctx context.Context) error {
	s.applyHandshakeDeadline()
	varintCodec := frame.NewVarintCodec(s.conn)
	neg := multistream.New(varintCodec)
	if err := neg.Dial(); err != nil {
		return fmt.Errorf("session: multistream version: %w", err)
	}
	if err := neg.Select(SecioProtocolID); err != nil {
		return fmt.Errorf("session: select secio: %w", err)
	}
	return s.runSecio(varintCodec)
}

// Listen runs the responder side: wait for the multistream version
// handshake, accept the secio sub-protocol selection, then run the
// secio handshake as the responding party.
func (s *Session) Listen(ctx context.Context) error {
	s.applyHandshakeDeadline()
	varintCodec := frame.NewVarintCodec(s.conn)
	neg := multistream.New(varintCodec)
	if err := neg.Listen(); err != nil {
		return fmt.Errorf("session: multistream version: %w", err)
	}
	protocolID, accepted, err := neg.Respond(func(id protocol.ID) bool { return id == SecioProtocolID })
	if err != nil {
		return fmt.Errorf("session: respond to sub-protocol selection: %w", err)
	}
	if !accepted {
		return fmt.Errorf("session: peer requested unsupported protocol %q", protocolID)
	}
	result, err := s.dispatch.Dispatch(ctx, protocolID, varintCodec)
	if err != nil {
		return fmt.Errorf("session: dispatch: %w", err)
	}
	if result != dispatch.Continue {
		return fmt.Errorf("session: handler returned unexpected result %v", result)
	}
	return nil
}

// applyHandshakeDeadline sets a deadline on the raw connection
// covering the entire negotiation and handshake sequence. A timeout on
// any read during this window is fatal (spec §5: "partial state is
// discarded and the session's byte stream is closed"); callers relying
// on Close after a failed Dial/Listen get exactly that.
func (s *Session) applyHandshakeDeadline() {
	timeout := s.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	s.conn.SetDeadline(time.Now().Add(timeout))
}

// runSecio performs the handshake on the dialer path directly (the
// listener path instead goes through the Protocol Dispatcher, since
// spec §4.3 routes incoming protocol selections through handlers).
func (s *Session) runSecio(varintCodec *frame.VarintCodec) error {
	plaintextCodec := frame.NewPlaintextCodecFromReader(varintCodec.Reader(), s.conn)
	result, err := secio.Run(plaintextCodec, s.signer, s.store)
	if err != nil {
		return fmt.Errorf("session: secio handshake: %w", err)
	}
	s.installSecio(result)
	return nil
}

func (s *Session) installSecio(result *secio.Result) {
	s.active = result.Channel
	s.RemotePeerID = result.RemotePeerID
	s.RemotePublicKey = result.RemotePublicKey
	s.Established = true
	s.conn.SetDeadline(time.Time{})
}

// Write sends a payload through the session's current active channel.
func (s *Session) Write(payload []byte) (int, error) {
	if s.active == nil {
		return 0, fmt.Errorf("session: write before a channel is established")
	}
	return s.active.Write(payload)
}

// Read receives one payload through the session's current active
// channel.
func (s *Session) Read() ([]byte, error) {
	if s.active == nil {
		return nil, fmt.Errorf("session: read before a channel is established")
	}
	return s.active.Read()
}

// Close tears down the session's handlers and underlying connection.
func (s *Session) Close(ctx context.Context) error {
	shutdownErr := s.dispatch.Shutdown(ctx)
	closeErr := s.conn.Close()
	if shutdownErr != nil {
		return shutdownErr
	}
	return closeErr
}

// secioHandler is the Protocol Dispatcher handler that recognizes the
// secio sub-protocol identifier and invokes the handshake (spec §4.3:
// "the secio handler recognizes payloads beginning with /ipfs/secio").
type secioHandler struct {
	session *Session
}

func (h *secioHandler) CanHandle(protocolID protocol.ID) bool {
	return strings.HasPrefix(string(protocolID), "/ipfs/secio")
}

func (h *secioHandler) Handle(ctx context.Context, protocolID protocol.ID, codec *frame.VarintCodec) (dispatch.Result, error) {
	plaintextCodec := frame.NewPlaintextCodecFromReader(codec.Reader(), h.session.conn)
	result, err := secio.Run(plaintextCodec, h.session.signer, h.session.store)
	if err != nil {
		return dispatch.ErrorResult, err
	}
	h.session.installSecio(result)
	return dispatch.Continue, nil
}

func (h *secioHandler) Shutdown(ctx context.Context) error {
	return nil
}

var _ Channel = (*secureconn.Channel)(nil)
