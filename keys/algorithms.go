// Package keys supplies the signer, ephemeral-DH, cipher, and hash
// primitives the secio handshake and secure channel are parameterized
// over. Nothing here is secio-specific: it is the thin adapter layer
// between the handshake's algorithm names ("AES-256", "P-256", ...)
// and the concrete crypto primitives that implement them.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/blowfish"
)

// SupportedExchanges, SupportedCiphers, and SupportedHashes are the
// comma-separated lists advertised verbatim in every Propose message.
const (
	SupportedExchanges = "P-256,P-384,P-521"
	SupportedCiphers   = "AES-256,AES-128,Blowfish"
	SupportedHashes    = "SHA256,SHA512"
)

// ErrUnknownAlgorithm is returned when a name outside the advertised
// sets is looked up.
var ErrUnknownAlgorithm = errors.New("keys: unknown algorithm")

// CipherSizes describes the IV and cipher-key lengths a stream cipher
// needs, independent of the chosen hash.
type CipherSizes struct {
	IVSize        int
	CipherKeySize int
}

// macKeySize is the length of the HMAC key carved out of the stretched
// secret. It is fixed regardless of which hash is chosen — it sizes
// the HMAC *key*, not the HMAC *output* (see HashDigestSize for that).
const macKeySize = 20

func MacKeySize() int { return macKeySize }

// CipherSizesFor returns the IV/key sizes for a cipher name from
// SupportedCiphers.
func CipherSizesFor(name string) (CipherSizes, error) {
	switch name {
	case "AES-128":
		return CipherSizes{IVSize: 16, CipherKeySize: 16}, nil
	case "AES-256":
		return CipherSizes{IVSize: 16, CipherKeySize: 32}, nil
	case "Blowfish":
		return CipherSizes{IVSize: 8, CipherKeySize: 32}, nil
	default:
		return CipherSizes{}, fmt.Errorf("%w: cipher %q", ErrUnknownAlgorithm, name)
	}
}

// NewBlockCipher returns a fresh AES or Blowfish block cipher for the
// given cipher name and key, ready to drive a CTR cipher.Stream.
func NewBlockCipher(name string, key []byte) (cipher.Block, error) {
	switch name {
	case "AES-128", "AES-256":
		return aes.NewCipher(key)
	case "Blowfish":
		return blowfish.NewCipher(key)
	default:
		return nil, fmt.Errorf("%w: cipher %q", ErrUnknownAlgorithm, name)
	}
}

// HashDigestSize returns the MAC tag size (full digest length) produced
// by HMAC under the given hash name.
func HashDigestSize(name string) (int, error) {
	switch name {
	case "SHA256":
		return sha256.Size, nil
	case "SHA512":
		return sha512.Size, nil
	default:
		return 0, fmt.Errorf("%w: hash %q", ErrUnknownAlgorithm, name)
	}
}

// NewHash returns the hash.Hash constructor for the given name, for use
// with hmac.New and the key-stretching expansion.
func NewHash(name string) (func() hash.Hash, error) {
	switch name {
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: hash %q", ErrUnknownAlgorithm, name)
	}
}

// NewHMAC constructs an HMAC keyed hash under the named hash function.
func NewHMAC(name string, key []byte) (hash.Hash, error) {
	h, err := NewHash(name)
	if err != nil {
		return nil, err
	}
	return hmac.New(h, key), nil
}

// ecdhCurve maps an advertised exchange name to a stdlib NIST curve.
// crypto/ecdh is the only primitive in reach of this core that speaks
// P-256/P-384/P-521 ECDH; x/crypto's curve25519 package is Curve25519
// only and cannot serve these curves, so this one concern is stdlib by
// necessity (see DESIGN.md).
func ecdhCurve(name string) (ecdh.Curve, error) {
	switch name {
	case "P-256":
		return ecdh.P256(), nil
	case "P-384":
		return ecdh.P384(), nil
	case "P-521":
		return ecdh.P521(), nil
	default:
		return nil, fmt.Errorf("%w: curve %q", ErrUnknownAlgorithm, name)
	}
}

// EphemeralKeyPair is a generated ephemeral Diffie-Hellman keypair on
// one of the advertised curves.
type EphemeralKeyPair struct {
	Curve   string
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey
}

// GenerateEphemeralKeyPair creates a fresh ephemeral keypair for the
// chosen curve using the platform's secure randomness source.
func GenerateEphemeralKeyPair(curveName string) (*EphemeralKeyPair, error) {
	curve, err := ecdhCurve(curveName)
	if err != nil {
		return nil, err
	}
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate ephemeral key: %w", err)
	}
	return &EphemeralKeyPair{Curve: curveName, private: priv, public: priv.PublicKey()}, nil
}

// PublicBytes returns the canonical uncompressed point encoding
// (leading 0x04 byte included) of the ephemeral public key.
func (k *EphemeralKeyPair) PublicBytes() []byte {
	return k.public.Bytes()
}

// PublicBytesTail returns the canonical encoding with the leading
// 0x04 byte stripped — the wire encoding secio actually sends (see
// spec §6's ephemeral-key encoding quirk).
func (k *EphemeralKeyPair) PublicBytesTail() []byte {
	b := k.public.Bytes()
	if len(b) == 0 {
		return b
	}
	return b[1:]
}

// Release drops the keypair's references to its private and public
// key material once the shared secret has been derived (spec §9's
// scoped-resources requirement for ephemeral keys). crypto/ecdh keeps
// the private scalar behind an opaque type with no exported mutable
// byte slice to scrub in place, so dropping the only reference this
// package holds is the release available to it; the garbage collector
// reclaims the underlying memory.
func (k *EphemeralKeyPair) Release() {
	k.private = nil
	k.public = nil
}

// SharedSecret performs ECDH between the local ephemeral private key
// and a remote ephemeral public key given in tail-stripped form; the
// leading 0x04 byte is restored before parsing.
func (k *EphemeralKeyPair) SharedSecret(curveName string, remotePubTail []byte) ([]byte, error) {
	curve, err := ecdhCurve(curveName)
	if err != nil {
		return nil, err
	}
	full := make([]byte, 0, len(remotePubTail)+1)
	full = append(full, 0x04)
	full = append(full, remotePubTail...)
	remotePub, err := curve.NewPublicKey(full)
	if err != nil {
		return nil, fmt.Errorf("keys: parse remote ephemeral public key: %w", err)
	}
	secret, err := k.private.ECDH(remotePub)
	if err != nil {
		return nil, fmt.Errorf("keys: ecdh: %w", err)
	}
	return secret, nil
}
