// Package peerstore implements the external-collaborator Peer Entry
// map spec.md calls for: a simple keyed store of peers identified by
// peer.ID, with insert/lookup/replace serialized by a single mutex
// (spec §5: "shared mutable; all insert/lookup/replace operations must
// be externally serialized").
package peerstore

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/gosuda/p2pcore/keys"
)

// Entry is one Peer Entry: the remote's long-term public key and,
// once a session completes its handshake, a reference to that
// session. SessionRef is typed as `any`; secio.Run stores the
// installed *secureconn.Channel in it once the handshake succeeds.
type Entry struct {
	ID         peer.ID
	PublicKey  keys.PublicKey
	SessionRef any
	// Addr is the raw address string a collaborator last observed this
	// peer at (e.g. "tcp/127.0.0.1:4001"), formatted on demand via
	// FormatAddr rather than parsed eagerly — the peer-store has no
	// opinion on transport, per spec §1's non-goal boundary.
	Addr string
}

// Store is an in-memory, mutex-serialized Peer Entry map. It is the
// reference implementation of the peer-store spec.md treats as an
// external collaborator; nothing about the secio handshake depends on
// this exact type beyond the methods below.
type Store struct {
	mu    sync.Mutex
	peers map[peer.ID]*Entry
}

// New returns an empty peer store.
func New() *Store {
	return &Store{peers: make(map[peer.ID]*Entry)}
}

// Lookup returns the entry for id, if any.
func (s *Store) Lookup(id peer.ID) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.peers[id]
	return e, ok
}

// Upsert inserts a new entry or replaces an existing one for the same
// peer id (spec §4.4 Phase 1: "If the peer-store has an existing peer
// with that id, replace its session reference; otherwise queue a new
// peer for insertion").
func (s *Store) Upsert(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[e.ID] = e
}

// Delete removes a peer entry, if present.
func (s *Store) Delete(id peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, id)
}

// Len reports the number of entries currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
