package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gosuda/p2pcore/keys"
)

const (
	proposeFieldRand      protowire.Number = 1
	proposeFieldPublicKey protowire.Number = 2
	proposeFieldExchanges protowire.Number = 3
	proposeFieldCiphers   protowire.Number = 4
	proposeFieldHashes    protowire.Number = 5
)

// Propose is the first secio handshake payload (spec §3).
type Propose struct {
	Rand      []byte
	PublicKey keys.PublicKey
	Exchanges string
	Ciphers   string
	Hashes    string
}

// Encode serializes a Propose as a tagged record. Field order is
// stable (rand, public_key, exchanges, ciphers, hashes) but decoders
// must not rely on it.
func (p Propose) Encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, proposeFieldRand, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Rand)
	b = protowire.AppendTag(b, proposeFieldPublicKey, protowire.BytesType)
	b = protowire.AppendBytes(b, EncodePublicKey(p.PublicKey))
	b = protowire.AppendTag(b, proposeFieldExchanges, protowire.BytesType)
	b = protowire.AppendString(b, p.Exchanges)
	b = protowire.AppendTag(b, proposeFieldCiphers, protowire.BytesType)
	b = protowire.AppendString(b, p.Ciphers)
	b = protowire.AppendTag(b, proposeFieldHashes, protowire.BytesType)
	b = protowire.AppendString(b, p.Hashes)
	return b
}

// DecodePropose parses a Propose record produced by Encode.
func DecodePropose(b []byte) (Propose, error) {
	var p Propose
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Propose{}, fmt.Errorf("wire: decode propose: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case proposeFieldRand:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Propose{}, fmt.Errorf("wire: decode propose.rand: %w", protowire.ParseError(n))
			}
			p.Rand = append([]byte(nil), v...)
			b = b[n:]
		case proposeFieldPublicKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Propose{}, fmt.Errorf("wire: decode propose.public_key: %w", protowire.ParseError(n))
			}
			pub, err := DecodePublicKey(v)
			if err != nil {
				return Propose{}, err
			}
			p.PublicKey = pub
			b = b[n:]
		case proposeFieldExchanges:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Propose{}, fmt.Errorf("wire: decode propose.exchanges: %w", protowire.ParseError(n))
			}
			p.Exchanges = v
			b = b[n:]
		case proposeFieldCiphers:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Propose{}, fmt.Errorf("wire: decode propose.ciphers: %w", protowire.ParseError(n))
			}
			p.Ciphers = v
			b = b[n:]
		case proposeFieldHashes:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Propose{}, fmt.Errorf("wire: decode propose.hashes: %w", protowire.ParseError(n))
			}
			p.Hashes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Propose{}, fmt.Errorf("wire: skip propose field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}
