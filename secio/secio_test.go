package secio

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gosuda/p2pcore/frame"
	"github.com/gosuda/p2pcore/keys"
	"github.com/gosuda/p2pcore/peerstore"
	"github.com/gosuda/p2pcore/wire"
)

func testCredential(t *testing.T) *keys.RSACredential {
	t.Helper()
	cred, err := keys.GenerateRSACredential(2048)
	if err != nil {
		t.Fatalf("generate credential: %v", err)
	}
	return cred
}

// runPair runs Run on both ends of a pipe concurrently and returns
// both results, following the same loopback harness shape as the
// teacher's cryptoops.TestHandshake (goroutines feeding results back
// through channels).
func runPair(t *testing.T, a, b net.Conn, credA, credB *keys.RSACredential) (*Result, error, *Result, error) {
	t.Helper()
	a.SetDeadline(time.Now().Add(5 * time.Second))
	b.SetDeadline(time.Now().Add(5 * time.Second))

	type out struct {
		res *Result
		err error
	}
	chA := make(chan out, 1)
	chB := make(chan out, 1)

	go func() {
		res, err := Run(frame.NewPlaintextCodec(a), credA, peerstore.New())
		chA <- out{res, err}
	}()
	go func() {
		res, err := Run(frame.NewPlaintextCodec(b), credB, peerstore.New())
		chB <- out{res, err}
	}()

	outA := <-chA
	outB := <-chB
	return outA.res, outA.err, outB.res, outB.err
}

func TestHandshakeHappyPath(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	credA := testCredential(t)
	credB := testCredential(t)

	resA, errA, resB, errB := runPair(t, a, b, credA, credB)
	if errA != nil {
		t.Fatalf("side A handshake: %v", errA)
	}
	if errB != nil {
		t.Fatalf("side B handshake: %v", errB)
	}

	if resA.RemotePeerID != credB.PeerID() {
		t.Fatalf("side A resolved wrong remote peer id")
	}
	if resB.RemotePeerID != credA.PeerID() {
		t.Fatalf("side B resolved wrong remote peer id")
	}
	if resA.Cipher != resB.Cipher || resA.Hash != resB.Hash || resA.Exchange != resB.Exchange {
		t.Fatalf("both sides must agree on the selected algorithm triple: %+v vs %+v", resA, resB)
	}

	// Exercise the installed secure channel end to end.
	msg := []byte("application data over secio")
	writeErr := make(chan error, 1)
	go func() {
		_, err := resA.Channel.Write(msg)
		writeErr <- err
	}()
	got, err := resB.Channel.Read()
	if err != nil {
		t.Fatalf("read application data: %v", err)
	}
	if err := <-writeErr; err != nil {
		t.Fatalf("write application data: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("application data mismatch: got %q, want %q", got, msg)
	}
}

func TestDetermineOrderRejectsSelfConnection(t *testing.T) {
	// A genuine self-connection is one where the "remote" Propose read
	// back is byte-identical to the one just sent (e.g. a loopback
	// socket echoing your own handshake to yourself): same public key,
	// same nonce. Two independent Run calls sharing a credential but
	// generating distinct random nonces is a different, legitimate
	// scenario and must NOT trip this guard.
	cred := testCredential(t)
	propose := proposeFor(t, cred, []byte("same-nonce-bytes"))

	_, err := determineOrder(propose, propose)
	if !errors.Is(err, ErrSelfConnection) {
		t.Fatalf("expected ErrSelfConnection for identical propose on both sides, got %v", err)
	}
}

func TestDetermineOrderAntisymmetric(t *testing.T) {
	credA := testCredential(t)
	credB := testCredential(t)

	proposeA := proposeFor(t, credA, []byte("nonce-a-0123456"))
	proposeB := proposeFor(t, credB, []byte("nonce-b-0123456"))

	orderAB, err := determineOrder(proposeB, proposeA)
	if err != nil {
		t.Fatalf("determineOrder(B,A): %v", err)
	}
	orderBA, err := determineOrder(proposeA, proposeB)
	if err != nil {
		t.Fatalf("determineOrder(A,B): %v", err)
	}
	if (orderAB > 0) == (orderBA > 0) {
		t.Fatalf("expected antisymmetric order: got %d and %d", orderAB, orderBA)
	}
}

func TestSelectBestNoIntersection(t *testing.T) {
	_, err := selectBest(1, "AES-128", "Blowfish")
	if !errors.Is(err, ErrNoCommonAlgorithm) {
		t.Fatalf("expected ErrNoCommonAlgorithm, got %v", err)
	}
}

func TestSelectBestPicksFirstLeadMatch(t *testing.T) {
	got, err := selectBest(1, "AES-256,AES-128,Blowfish", "Blowfish,AES-128")
	if err != nil {
		t.Fatalf("selectBest: %v", err)
	}
	if got != "AES-128" {
		t.Fatalf("expected first lead-order match AES-128, got %q", got)
	}

	got, err = selectBest(-1, "AES-256,AES-128,Blowfish", "Blowfish,AES-128")
	if err != nil {
		t.Fatalf("selectBest: %v", err)
	}
	if got != "Blowfish" {
		t.Fatalf("expected remote list to lead when order < 0, got %q", got)
	}
}

func TestStretchKeysDeterministicAndSwapped(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)

	localPos, remotePos, err := stretchKeys("SHA256", "AES-256", secret, 1)
	if err != nil {
		t.Fatalf("stretchKeys(order=1): %v", err)
	}
	remoteNeg, localNeg, err := stretchKeys("SHA256", "AES-256", secret, -1)
	if err != nil {
		t.Fatalf("stretchKeys(order=-1): %v", err)
	}
	if !bytes.Equal(localPos.IV, localNeg.IV) || !bytes.Equal(localPos.CipherKey, localNeg.CipherKey) {
		t.Fatalf("expected the same secret to stretch into the same key material regardless of order")
	}
	if !bytes.Equal(remotePos.IV, remoteNeg.IV) {
		t.Fatalf("expected stable stretched output across order sign")
	}
}

func proposeFor(t *testing.T, cred *keys.RSACredential, nonce []byte) wire.Propose {
	t.Helper()
	return wire.Propose{Rand: nonce, PublicKey: cred.PublicKey(), Exchanges: keys.SupportedExchanges, Ciphers: keys.SupportedCiphers, Hashes: keys.SupportedHashes}
}
