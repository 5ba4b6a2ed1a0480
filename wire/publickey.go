// Package wire implements the tagged-record encoding spec §3/§6 calls
// for, on top of google.golang.org/protobuf/encoding/protowire's
// low-level field writer/reader. Field order never matters to a
// decoder (per spec), so encoding just appends fields in a stable
// order and decoding loops until the buffer is consumed, dispatching
// on field number.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gosuda/p2pcore/keys"
)

const (
	publicKeyFieldType protowire.Number = 1
	publicKeyFieldData protowire.Number = 2
)

// EncodePublicKey serializes a tagged long-term public key record:
// {type, data} per spec §6.
func EncodePublicKey(pub keys.PublicKey) []byte {
	var b []byte
	b = protowire.AppendTag(b, publicKeyFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pub.Type))
	b = protowire.AppendTag(b, publicKeyFieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, pub.DER)
	return b
}

// DecodePublicKey parses a tagged public-key record produced by
// EncodePublicKey.
func DecodePublicKey(b []byte) (keys.PublicKey, error) {
	var pub keys.PublicKey
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return keys.PublicKey{}, fmt.Errorf("wire: decode public key: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case publicKeyFieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return keys.PublicKey{}, fmt.Errorf("wire: decode public key type: %w", protowire.ParseError(n))
			}
			pub.Type = keys.KeyType(v)
			b = b[n:]
		case publicKeyFieldData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return keys.PublicKey{}, fmt.Errorf("wire: decode public key data: %w", protowire.ParseError(n))
			}
			pub.DER = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return keys.PublicKey{}, fmt.Errorf("wire: skip public key field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return pub, nil
}
