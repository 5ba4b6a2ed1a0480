package peerstore

import (
	ma "github.com/multiformats/go-multiaddr"
)

// AddrFormatter renders a Peer Entry's raw address into a
// human-readable form. It exists so peerstore can hand callers a
// display string without itself depending on any particular transport
// or address scheme (spec §1: multiaddress formatting is consumed
// through an interface, never reimplemented).
type AddrFormatter interface {
	Format(raw string) (string, error)
}

// MultiaddrFormatter formats a raw multiaddr string (e.g.
// "/ip4/127.0.0.1/tcp/4001") using go-multiaddr's parser, the same
// library the teacher's host construction code uses to build listen
// addresses.
type MultiaddrFormatter struct{}

func (MultiaddrFormatter) Format(raw string) (string, error) {
	addr, err := ma.NewMultiaddr(raw)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// FormatAddr renders e.Addr with f, leaving the raw string unchanged
// on error.
func (e *Entry) FormatAddr(f AddrFormatter) string {
	if e.Addr == "" {
		return ""
	}
	formatted, err := f.Format(e.Addr)
	if err != nil {
		return e.Addr
	}
	return formatted
}
