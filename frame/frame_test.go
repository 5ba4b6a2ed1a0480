package frame

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestVarintCodecRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1<<16),
	}
	for _, payload := range cases {
		var buf bytes.Buffer
		codec := NewVarintCodec(&buf)
		if _, err := codec.Write(payload); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := codec.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(payload) == 0 && len(got) != 0 {
			t.Fatalf("expected empty roundtrip, got %d bytes", len(got))
		}
		if len(payload) > 0 && !bytes.Equal(got, payload) {
			t.Fatalf("roundtrip mismatch: got %d bytes, want %d", len(got), len(payload))
		}
	}
}

func TestPlaintextCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewPlaintextCodec(&buf)
	payload := []byte("/multistream/1.0.0\n")
	if _, err := codec.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := codec.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("roundtrip mismatch: got %q, want %q", got, payload)
	}
}

func TestPlaintextCodecSkipsSpuriousNewline(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x0A) // spurious leftover newline
	codec := NewPlaintextCodec(&buf)
	payload := []byte("propose-bytes")
	if _, err := codec.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := codec.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected spurious 0x0A to be skipped, got %q", got)
	}
}

func TestVarintCodecFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a frame declaring a length above MaxFrameSize.
	big := NewVarintCodec(&buf)
	// Only the length prefix is written; Read must reject it before
	// trying to allocate or read the declared payload.
	oversized := make([]byte, 0)
	oversized = appendUvarintForTest(oversized, MaxFrameSize+1)
	buf.Write(oversized)
	if _, err := big.Read(); err == nil {
		t.Fatal("expected error for oversized declared frame length")
	} else if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestVarintCodecMalformedVarint(t *testing.T) {
	var buf bytes.Buffer
	// 11 bytes all with the continuation bit set: longer than the
	// maximum 10-byte varint encoding of a uint64.
	for i := 0; i < 11; i++ {
		buf.WriteByte(0x80)
	}
	codec := NewVarintCodec(&buf)
	if _, err := codec.Read(); err != ErrMalformedVarint {
		t.Fatalf("expected ErrMalformedVarint, got %v", err)
	}
}

func TestVarintCodecLoopbackPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	codecA := NewVarintCodec(a)
	codecB := NewVarintCodec(b)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := codecA.Write([]byte("ping")); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	a.SetDeadline(time.Now().Add(2 * time.Second))
	b.SetDeadline(time.Now().Add(2 * time.Second))

	got, err := codecB.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("got %q, want %q", got, "ping")
	}
	<-done
}

func appendUvarintForTest(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}
