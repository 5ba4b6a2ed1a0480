package session

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/gosuda/p2pcore/keys"
	"github.com/gosuda/p2pcore/peerstore"
)

func testCredential(t *testing.T) *keys.RSACredential {
	t.Helper()
	cred, err := keys.GenerateRSACredential(2048)
	if err != nil {
		t.Fatalf("generate credential: %v", err)
	}
	return cred
}

// TestDialListenEndToEnd exercises the full stack over a real TCP
// loopback connection: multistream negotiation selects secio, the
// secio handshake installs the Secure Channel, and one application
// message round-trips through it.
func TestDialListenEndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverCred := testCredential(t)
	clientCred := testCredential(t)

	acceptErr := make(chan error, 1)
	var serverSession *Session
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		serverSession = New(conn, serverCred, peerstore.New())
		acceptErr <- serverSession.Listen(context.Background())
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	clientSession := New(conn, clientCred, peerstore.New())
	if err := clientSession.Dial(context.Background()); err != nil {
		t.Fatalf("client dial: %v", err)
	}
	if err := <-acceptErr; err != nil {
		t.Fatalf("server listen: %v", err)
	}

	if !clientSession.Established || !serverSession.Established {
		t.Fatal("expected both sessions to be marked established")
	}
	if clientSession.RemotePeerID != serverCred.PeerID() {
		t.Fatalf("client resolved wrong remote peer id")
	}
	if serverSession.RemotePeerID != clientCred.PeerID() {
		t.Fatalf("server resolved wrong remote peer id")
	}

	msg := []byte("hello over the negotiated secure session")
	writeErr := make(chan error, 1)
	go func() {
		_, err := clientSession.Write(msg)
		writeErr <- err
	}()
	got, err := serverSession.Read()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if err := <-writeErr; err != nil {
		t.Fatalf("client write: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("message mismatch: got %q, want %q", got, msg)
	}
}

// TestWriteBeforeEstablishedFails documents the precondition that a
// session's active channel only exists after a handshake completes.
func TestWriteBeforeEstablishedFails(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	s := New(a, testCredential(t), peerstore.New())
	_ = b
	if _, err := s.Write([]byte("too early")); err == nil {
		t.Fatal("expected write before handshake to fail")
	}
}
