package secio

import (
	"errors"
	"fmt"
)

// Error taxonomy (spec §7): typed sentinels wrapped with %w at each
// call site, following the teacher's cryptoops.Err* idiom rather than
// a framework error type.
var (
	// ErrTransport covers I/O failures on the underlying byte stream.
	ErrTransport = errors.New("secio: transport error")
	// ErrProtocol covers malformed or undecodable wire records.
	ErrProtocol = errors.New("secio: protocol error")
	// ErrNegotiation covers failed algorithm selection and the
	// self-connection guard.
	ErrNegotiation = errors.New("secio: negotiation error")
	// ErrCrypto covers signature, DH, and MAC failures.
	ErrCrypto = errors.New("secio: crypto error")

	// ErrSelfConnection is a NegotiationError: order == 0, meaning the
	// local and remote identities are the same (spec §4.4 Phase 2:
	// "fatal error in a correct implementation").
	ErrSelfConnection = fmt.Errorf("%w: self connection (order == 0)", ErrNegotiation)
	// ErrNoCommonAlgorithm is a NegotiationError: the lead and follower
	// algorithm lists share no entry.
	ErrNoCommonAlgorithm = fmt.Errorf("%w: no common algorithm", ErrNegotiation)
	// ErrLivenessCheckFailed is a CryptoError: the nonce echoed back
	// through the newly installed Secure Channel did not match.
	ErrLivenessCheckFailed = fmt.Errorf("%w: liveness check failed", ErrCrypto)
)
