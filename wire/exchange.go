package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	exchangeFieldEPubKey   protowire.Number = 1
	exchangeFieldSignature protowire.Number = 2
)

// Exchange is the second secio handshake payload (spec §3): the
// tail-encoded ephemeral public key plus the signature over the
// handshake corpus.
type Exchange struct {
	EPubKey   []byte
	Signature []byte
}

func (e Exchange) Encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, exchangeFieldEPubKey, protowire.BytesType)
	b = protowire.AppendBytes(b, e.EPubKey)
	b = protowire.AppendTag(b, exchangeFieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Signature)
	return b
}

func DecodeExchange(b []byte) (Exchange, error) {
	var e Exchange
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Exchange{}, fmt.Errorf("wire: decode exchange: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case exchangeFieldEPubKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Exchange{}, fmt.Errorf("wire: decode exchange.epubkey: %w", protowire.ParseError(n))
			}
			e.EPubKey = append([]byte(nil), v...)
			b = b[n:]
		case exchangeFieldSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Exchange{}, fmt.Errorf("wire: decode exchange.signature: %w", protowire.ParseError(n))
			}
			e.Signature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Exchange{}, fmt.Errorf("wire: skip exchange field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}
