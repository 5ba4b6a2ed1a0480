// Package secureconn implements the Secure Channel (spec §4.5): once
// installed by the secio handshake, it transparently wraps a
// varint-framed byte stream with AES-CTR (or Blowfish-CTR) encryption
// and an HMAC tag, using one Directional Key and one continuously
// advancing CTR state per direction.
package secureconn

import (
	"crypto/cipher"
	"crypto/hmac"
	"errors"
	"fmt"
	"sync"

	"github.com/gosuda/p2pcore/frame"
	"github.com/gosuda/p2pcore/keys"
)

// DirectionalKey is the {iv, cipher_key, mac_key} triple the secio
// handshake's key-stretching phase produces, one per direction (spec
// §3's Directional Key).
type DirectionalKey struct {
	IV        []byte
	CipherKey []byte
	MacKey    []byte
}

// ErrMACMismatch is returned by Read when the computed tag does not
// match the one carried on the wire — spec §4.5's "fatal MAC failure".
var ErrMACMismatch = errors.New("secureconn: MAC verification failed")

// Channel is the Secure Channel installed over a frame.VarintCodec
// once the secio handshake completes. Write and Read are safe for
// concurrent use: each direction is serialized by its own mutex, so
// frames in one direction never interleave and its CTR state advances
// in order.
type Channel struct {
	codec *frame.VarintCodec

	writeMu   sync.Mutex
	writeCTR  cipher.Stream
	writeMac  []byte
	writeHash string

	readMu   sync.Mutex
	readCTR  cipher.Stream
	readMac  []byte
	readHash string
}

// New builds a Secure Channel over an already-framed byte stream.
// cipherName and hashName are the algorithms Phase 3 of the handshake
// selected; localKey encrypts writes, remoteKey decrypts reads.
func New(codec *frame.VarintCodec, cipherName, hashName string, localKey, remoteKey DirectionalKey) (*Channel, error) {
	writeBlock, err := keys.NewBlockCipher(cipherName, localKey.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("secureconn: local cipher: %w", err)
	}
	readBlock, err := keys.NewBlockCipher(cipherName, remoteKey.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("secureconn: remote cipher: %w", err)
	}
	return &Channel{
		codec:     codec,
		writeCTR:  cipher.NewCTR(writeBlock, localKey.IV),
		writeMac:  localKey.MacKey,
		writeHash: hashName,
		readCTR:   cipher.NewCTR(readBlock, remoteKey.IV),
		readMac:   remoteKey.MacKey,
		readHash:  hashName,
	}, nil
}

// Write encrypts plaintext under the local direction's CTR state,
// appends an HMAC tag over the ciphertext, and sends it as one varint
// frame (spec §4.5 write path).
func (c *Channel) Write(plaintext []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ciphertext := make([]byte, len(plaintext))
	c.writeCTR.XORKeyStream(ciphertext, plaintext)

	mac, err := keys.NewHMAC(c.writeHash, c.writeMac)
	if err != nil {
		return 0, fmt.Errorf("secureconn: write mac: %w", err)
	}
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	frame := make([]byte, 0, len(ciphertext)+len(tag))
	frame = append(frame, ciphertext...)
	frame = append(frame, tag...)
	if _, err := c.codec.Write(frame); err != nil {
		return 0, fmt.Errorf("secureconn: write frame: %w", err)
	}
	return len(plaintext), nil
}

// Read receives one varint frame, verifies its HMAC tag in constant
// time, and decrypts the ciphertext under the remote direction's CTR
// state (spec §4.5 read path).
func (c *Channel) Read() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	f, err := c.codec.Read()
	if err != nil {
		return nil, fmt.Errorf("secureconn: read frame: %w", err)
	}
	tagSize, err := keys.HashDigestSize(c.readHash)
	if err != nil {
		return nil, fmt.Errorf("secureconn: read: %w", err)
	}
	if len(f) < tagSize {
		return nil, fmt.Errorf("secureconn: frame shorter than mac tag (%d < %d)", len(f), tagSize)
	}
	ciphertext, tag := f[:len(f)-tagSize], f[len(f)-tagSize:]

	mac, err := keys.NewHMAC(c.readHash, c.readMac)
	if err != nil {
		return nil, fmt.Errorf("secureconn: read mac: %w", err)
	}
	mac.Write(ciphertext)
	want := mac.Sum(nil)
	if !hmac.Equal(want, tag) {
		return nil, ErrMACMismatch
	}

	plaintext := make([]byte, len(ciphertext))
	c.readCTR.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
