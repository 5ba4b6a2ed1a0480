package wire

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gosuda/p2pcore/keys"
)

func encodeUnknownVarintField(num protowire.Number, v uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, v)
	return b
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub := keys.PublicKey{Type: keys.KeyTypeRSA, DER: []byte{0x01, 0x02, 0x03, 0xff}}
	got, err := DecodePublicKey(EncodePublicKey(pub))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != pub.Type || !bytes.Equal(got.DER, pub.DER) {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, pub)
	}
}

func TestProposeRoundTrip(t *testing.T) {
	in := Propose{
		Rand:      bytes.Repeat([]byte{0x42}, 16),
		PublicKey: keys.PublicKey{Type: keys.KeyTypeRSA, DER: []byte("der-bytes")},
		Exchanges: keys.SupportedExchanges,
		Ciphers:   keys.SupportedCiphers,
		Hashes:    keys.SupportedHashes,
	}
	got, err := DecodePropose(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Rand, in.Rand) ||
		got.PublicKey.Type != in.PublicKey.Type ||
		!bytes.Equal(got.PublicKey.DER, in.PublicKey.DER) ||
		got.Exchanges != in.Exchanges ||
		got.Ciphers != in.Ciphers ||
		got.Hashes != in.Hashes {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, in)
	}
}

func TestProposeRoundTripEmpty(t *testing.T) {
	got, err := DecodePropose(Propose{}.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Rand) != 0 || got.Exchanges != "" {
		t.Fatalf("expected zero-value roundtrip, got %+v", got)
	}
}

func TestExchangeRoundTrip(t *testing.T) {
	in := Exchange{
		EPubKey:   bytes.Repeat([]byte{0x07}, 64),
		Signature: bytes.Repeat([]byte{0x09}, 256),
	}
	got, err := DecodeExchange(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.EPubKey, in.EPubKey) || !bytes.Equal(got.Signature, in.Signature) {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, in)
	}
}

func TestDecodePublicKeyIgnoresUnknownFields(t *testing.T) {
	// A well-formed record with an extra unknown field (number 99) must
	// still decode the fields it knows about.
	pub := keys.PublicKey{Type: keys.KeyTypeRSA, DER: []byte{0xaa}}
	b := EncodePublicKey(pub)
	b = append(b, encodeUnknownVarintField(99, 1234)...)
	got, err := DecodePublicKey(b)
	if err != nil {
		t.Fatalf("decode with unknown field: %v", err)
	}
	if got.Type != pub.Type || !bytes.Equal(got.DER, pub.DER) {
		t.Fatalf("unknown field corrupted known fields: %+v", got)
	}
}
