// Package secio implements the Secio Handshake (spec §4.4): the
// mutually-authenticated key agreement that turns a freshly negotiated
// `/ipfs/secio/1.0.0` stream into an installed Secure Channel. All six
// phases — Propose exchange, deterministic role assignment, algorithm
// selection, signed ephemeral key exchange, HMAC key stretching, and
// secure-channel cutover with a liveness check — live here.
package secio

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/gosuda/p2pcore/frame"
	"github.com/gosuda/p2pcore/keys"
	"github.com/gosuda/p2pcore/peerstore"
	"github.com/gosuda/p2pcore/secureconn"
	"github.com/gosuda/p2pcore/wire"
)

const localNonceSize = 16

// Result is what a successful handshake hands back to the caller: the
// remote peer's identity and the installed Secure Channel.
type Result struct {
	RemotePeerID    peer.ID
	RemotePublicKey keys.PublicKey
	Exchange        string
	Cipher          string
	Hash            string
	Channel         *secureconn.Channel
}

// Run performs the secio handshake over codec (the plaintext,
// 32-bit-length-framed path spec §4.1 reserves for it) and, on
// success, installs and returns a Secure Channel built on top of the
// same underlying byte stream's varint framing.
//
// Both sides of a secio connection call Run identically — the
// handshake is symmetric (spec §4.4 Phase 1: "write... and read...
// symmetrically"); there is no separate dialer/listener code path,
// only the role assignment (order) resolved in Phase 2.
func Run(codec *frame.PlaintextCodec, signer keys.Signer, store *peerstore.Store) (*Result, error) {
	localNonce := make([]byte, localNonceSize)
	if _, err := rand.Read(localNonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrCrypto, err)
	}
	defer zero(localNonce)

	localPropose := wire.Propose{
		Rand:      localNonce,
		PublicKey: signer.PublicKey(),
		Exchanges: keys.SupportedExchanges,
		Ciphers:   keys.SupportedCiphers,
		Hashes:    keys.SupportedHashes,
	}
	localProposeBytes := localPropose.Encode()
	defer zero(localProposeBytes)

	remoteProposeBytes, err := writeThenRead(codec, localProposeBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: propose exchange: %v", ErrTransport, err)
	}
	defer zero(remoteProposeBytes)
	remotePropose, err := wire.DecodePropose(remoteProposeBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: decode propose: %v", ErrProtocol, err)
	}

	remotePeerID, err := keys.PeerIDFromPublicKey(remotePropose.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: remote peer id: %v", ErrCrypto, err)
	}
	if entry, ok := store.Lookup(remotePeerID); ok {
		entry.PublicKey = remotePropose.PublicKey
	}

	order, err := determineOrder(remotePropose, localPropose)
	if err != nil {
		return nil, err
	}

	exchangeName, err := selectBest(order, localPropose.Exchanges, remotePropose.Exchanges)
	if err != nil {
		return nil, fmt.Errorf("exchanges: %w", err)
	}
	cipherName, err := selectBest(order, localPropose.Ciphers, remotePropose.Ciphers)
	if err != nil {
		return nil, fmt.Errorf("ciphers: %w", err)
	}
	hashName, err := selectBest(order, localPropose.Hashes, remotePropose.Hashes)
	if err != nil {
		return nil, fmt.Errorf("hashes: %w", err)
	}

	ephemeral, err := keys.GenerateEphemeralKeyPair(exchangeName)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", ErrCrypto, err)
	}
	defer ephemeral.Release()

	signCorpus := concat(localProposeBytes, remoteProposeBytes, ephemeral.PublicBytesTail())
	defer zero(signCorpus)
	signature, err := signer.Sign(signCorpus)
	if err != nil {
		return nil, fmt.Errorf("%w: sign exchange: %v", ErrCrypto, err)
	}

	localExchange := wire.Exchange{EPubKey: ephemeral.PublicBytesTail(), Signature: signature}
	localExchangeBytes := localExchange.Encode()
	defer zero(localExchangeBytes)
	remoteExchangeBytes, err := writeThenRead(codec, localExchangeBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange: %v", ErrTransport, err)
	}
	defer zero(remoteExchangeBytes)
	remoteExchange, err := wire.DecodeExchange(remoteExchangeBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: decode exchange: %v", ErrProtocol, err)
	}

	verifyCorpus := concat(remoteProposeBytes, localProposeBytes, remoteExchange.EPubKey)
	defer zero(verifyCorpus)
	if err := keys.VerifyRSA(remotePropose.PublicKey, verifyCorpus, remoteExchange.Signature); err != nil {
		return nil, fmt.Errorf("%w: verify exchange signature: %v", ErrCrypto, err)
	}

	sharedSecret, err := ephemeral.SharedSecret(exchangeName, remoteExchange.EPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: derive shared secret: %v", ErrCrypto, err)
	}
	defer zero(sharedSecret)

	localKey, remoteKey, err := stretchKeys(hashName, cipherName, sharedSecret, order)
	if err != nil {
		return nil, fmt.Errorf("%w: stretch keys: %v", ErrCrypto, err)
	}

	varintCodec := frame.NewVarintCodecFromReader(codec.Reader(), codec.Writer())
	channel, err := secureconn.New(varintCodec, cipherName, hashName, localKey, remoteKey)
	if err != nil {
		return nil, fmt.Errorf("%w: install secure channel: %v", ErrCrypto, err)
	}

	writeErr := make(chan error, 1)
	go func() {
		_, err := channel.Write(remotePropose.Rand)
		writeErr <- err
	}()
	echoed, err := channel.Read()
	if werr := <-writeErr; werr != nil {
		return nil, fmt.Errorf("%w: send liveness nonce: %v", ErrTransport, werr)
	}
	if err != nil {
		if errors.Is(err, secureconn.ErrMACMismatch) {
			return nil, fmt.Errorf("%w: read liveness nonce: %v", ErrCrypto, err)
		}
		return nil, fmt.Errorf("%w: read liveness nonce: %v", ErrTransport, err)
	}
	if !bytes.Equal(echoed, localNonce) {
		return nil, ErrLivenessCheckFailed
	}

	if entry, ok := store.Lookup(remotePeerID); ok {
		entry.SessionRef = channel
	} else {
		store.Upsert(&peerstore.Entry{ID: remotePeerID, PublicKey: remotePropose.PublicKey, SessionRef: channel})
	}

	return &Result{
		RemotePeerID:    remotePeerID,
		RemotePublicKey: remotePropose.PublicKey,
		Exchange:        exchangeName,
		Cipher:          cipherName,
		Hash:            hashName,
		Channel:         channel,
	}, nil
}

// determineOrder computes the lexicographic comparison that decides
// which side leads every subsequent tie-break (spec §4.4 Phase 2).
func determineOrder(remote, local wire.Propose) (int, error) {
	h1 := sha256.Sum256(concat(wire.EncodePublicKey(remote.PublicKey), local.Rand))
	h2 := sha256.Sum256(concat(wire.EncodePublicKey(local.PublicKey), remote.Rand))
	order := bytes.Compare(h1[:], h2[:])
	if order == 0 {
		return 0, ErrSelfConnection
	}
	return order, nil
}

// selectBest picks the first entry of the lead list that also appears
// in the follower list, lead/follower chosen by the sign of order
// (spec §4.4 Phase 3).
func selectBest(order int, localList, remoteList string) (string, error) {
	lead, follower := localList, remoteList
	if order < 0 {
		lead, follower = remoteList, localList
	}
	followerSet := make(map[string]struct{})
	for _, entry := range strings.Split(follower, ",") {
		followerSet[entry] = struct{}{}
	}
	for _, entry := range strings.Split(lead, ",") {
		if _, ok := followerSet[entry]; ok {
			return entry, nil
		}
	}
	return "", ErrNoCommonAlgorithm
}

// stretchKeys expands the shared secret into two Directional Keys via
// HMAC-based key stretching (spec §4.4 Phase 5), parameterized by the
// chosen hash rather than hardcoded to SHA-256 (SPEC_FULL.md's
// deliberate deviation from the reference, since this implementation
// has no existing wire-compatible peers to preserve compatibility
// with).
//
// The intermediate expansion buffer is an ephemeral/derived buffer in
// the sense spec §9 means (scoped resources): it is zeroed before
// returning, on every exit path, once the Directional Keys have been
// carved out of it into their own independent backing arrays.
func stretchKeys(hashName, cipherName string, secret []byte, order int) (local, remote secureconn.DirectionalKey, err error) {
	sizes, err := keys.CipherSizesFor(cipherName)
	if err != nil {
		return secureconn.DirectionalKey{}, secureconn.DirectionalKey{}, err
	}
	macSize := keys.MacKeySize()
	halfLen := sizes.IVSize + sizes.CipherKeySize + macSize
	output, err := expandHMAC(hashName, secret, 2*halfLen)
	if err != nil {
		return secureconn.DirectionalKey{}, secureconn.DirectionalKey{}, err
	}
	defer zero(output)

	k1 := carveDirectionalKey(output[:halfLen], sizes, macSize)
	k2 := carveDirectionalKey(output[halfLen:], sizes, macSize)

	if order > 0 {
		return k1, k2, nil
	}
	return k2, k1, nil
}

// carveDirectionalKey copies its three fields out of b rather than
// sub-slicing it, so the caller can safely zero b (the shared
// expansion buffer) once both Directional Keys are carved without
// also wiping the key material a Secure Channel goes on to use for
// the life of the session.
func carveDirectionalKey(b []byte, sizes keys.CipherSizes, macSize int) secureconn.DirectionalKey {
	iv := append([]byte(nil), b[:sizes.IVSize]...)
	cipherKey := append([]byte(nil), b[sizes.IVSize:sizes.IVSize+sizes.CipherKeySize]...)
	macKey := append([]byte(nil), b[sizes.IVSize+sizes.CipherKeySize:sizes.IVSize+sizes.CipherKeySize+macSize]...)
	return secureconn.DirectionalKey{IV: iv, CipherKey: cipherKey, MacKey: macKey}
}

// expandHMAC implements the A/B expansion loop: A = HMAC(secret, "key
// expansion"); repeatedly B = HMAC(secret, A || "key expansion"),
// append B, A = HMAC(secret, A); until length bytes are produced.
func expandHMAC(hashName string, secret []byte, length int) ([]byte, error) {
	const seed = "key expansion"

	a, err := hmacSum(hashName, secret, []byte(seed))
	if err != nil {
		return nil, err
	}

	output := make([]byte, 0, length)
	for len(output) < length {
		block := append(append([]byte(nil), a...), []byte(seed)...)
		b, err := hmacSum(hashName, secret, block)
		zero(block)
		if err != nil {
			zero(a)
			return nil, err
		}
		output = append(output, b...)
		zero(b)

		next, err := hmacSum(hashName, secret, a)
		zero(a)
		if err != nil {
			return nil, err
		}
		a = next
	}
	zero(a)
	return output[:length], nil
}

func hmacSum(hashName string, key, data []byte) ([]byte, error) {
	mac, err := keys.NewHMAC(hashName, key)
	if err != nil {
		return nil, err
	}
	mac.Write(data)
	return mac.Sum(nil), nil
}

// writeThenRead writes a payload and reads the peer's response
// concurrently. Spec §4.4 Phase 1 calls for writing the local message
// "and read[ing] the peer's... symmetrically", but both sides perform
// the same write-then-read sequence; running the write on a goroutine
// avoids a deadlock on transports (such as io.Pipe) that block a
// Write until a matching Read drains it.
func writeThenRead(codec *frame.PlaintextCodec, payload []byte) ([]byte, error) {
	writeErr := make(chan error, 1)
	go func() {
		_, err := codec.Write(payload)
		writeErr <- err
	}()

	got, readErr := codec.Read()
	if err := <-writeErr; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return got, nil
}

// zero overwrites b in place, for scrubbing ephemeral/derived handshake
// material before it is released (spec §9's scoped-resources
// requirement; spec §7's "all ephemeral/derived material is zeroed and
// released" on every exit path). Grounded on the teacher's own
// wipeMemory helper in portal/core/cryptoops/handshaker.go.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func concat(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

