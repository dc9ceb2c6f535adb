package proxy

import (
	"net"
	"testing"
	"time"

	"github.com/loopwire/procproxy/internal/wire"
)

func respondReadInput(t *testing.T, server net.Conn, n int32, payload []byte) {
	t.Helper()
	op, err := wire.ReadU8(server)
	if err != nil {
		return
	}
	if wire.Opcode(op) != wire.ReadInput {
		t.Errorf("unexpected opcode %v, want READ_INPUT", wire.Opcode(op))
		return
	}
	wire.ReadU32(server) // requested max, unused by the fake
	wire.WriteOKStatus(server)
	wire.WriteI32(server, n)
	if n > 0 {
		server.Write(payload)
	}
}

func TestInputStreamDeliversDataThenEOF(t *testing.T) {
	c, server := newTestPair(t)
	c.Input().SetPollInterval(5 * time.Millisecond)

	go func() {
		respondReadInput(t, server, 5, []byte("test\n"))
		respondReadInput(t, server, -1, nil)
	}()

	var received []byte
	eof := make(chan struct{})
	c.Input().Listen(func(b []byte) bool {
		received = append(received, b...)
		return true
	}, func() {
		close(eof)
	})

	select {
	case <-eof:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EOF callback")
	}

	if string(received) != "test\n" {
		t.Fatalf("received = %q, want %q", received, "test\n")
	}
}

func TestInputStreamPollsOnWouldBlock(t *testing.T) {
	c, server := newTestPair(t)
	c.Input().SetPollInterval(5 * time.Millisecond)

	go func() {
		respondReadInput(t, server, 0, nil)
		respondReadInput(t, server, 0, nil)
		respondReadInput(t, server, 3, []byte("hi\n"))
		respondReadInput(t, server, -1, nil)
	}()

	var received []byte
	eof := make(chan struct{})
	c.Input().Listen(func(b []byte) bool {
		received = append(received, b...)
		return true
	}, func() {
		close(eof)
	})

	select {
	case <-eof:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EOF callback")
	}

	if string(received) != "hi\n" {
		t.Fatalf("received = %q, want %q", received, "hi\n")
	}
}

func TestInputStreamDestroyStopsPolling(t *testing.T) {
	c, server := newTestPair(t)
	c.Input().SetPollInterval(5 * time.Millisecond)

	respondedOnce := make(chan struct{})
	go func() {
		respondReadInput(t, server, 0, nil)
		close(respondedOnce)
	}()

	called := make(chan struct{}, 100)
	c.Input().Listen(func(b []byte) bool { called <- struct{}{}; return true }, func() { called <- struct{}{} })

	<-respondedOnce
	c.Input().destroy()

	// Give any stray poll a chance to land, then make sure nothing arrived
	// after destroy besides what was already in flight.
	time.Sleep(20 * time.Millisecond)
	drained := 0
	for {
		select {
		case <-called:
			drained++
		default:
			if drained > 2 {
				t.Fatalf("destroy did not stop polling, saw %d callbacks", drained)
			}
			return
		}
	}
}

func TestInputStreamSuspendsOnBackpressureUntilResume(t *testing.T) {
	c, server := newTestPair(t)
	c.Input().SetPollInterval(5 * time.Millisecond)

	secondRequestReceived := make(chan struct{})
	go func() {
		respondReadInput(t, server, 3, []byte("hi\n"))
		op, err := wire.ReadU8(server)
		if err != nil {
			return
		}
		close(secondRequestReceived)
		if wire.Opcode(op) != wire.ReadInput {
			t.Errorf("unexpected opcode %v, want READ_INPUT", wire.Opcode(op))
			return
		}
		wire.ReadU32(server)
		wire.WriteOKStatus(server)
		wire.WriteI32(server, -1)
	}()

	deliveries := make(chan []byte, 10)
	eof := make(chan struct{})
	first := true
	c.Input().Listen(func(b []byte) bool {
		deliveries <- b
		if first {
			first = false
			return false // signal backpressure
		}
		return true
	}, func() { close(eof) })

	select {
	case <-deliveries:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first delivery")
	}

	// No further READ_INPUT should be issued while suspended.
	select {
	case <-secondRequestReceived:
		t.Fatal("polling continued despite backpressure")
	case <-time.After(50 * time.Millisecond):
	}

	c.Input().Resume()

	select {
	case <-eof:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EOF after resume")
	}
}

func TestInputStreamCloseIsIdempotent(t *testing.T) {
	c, server := newTestPair(t)

	go func() {
		op, _ := wire.ReadU8(server)
		if wire.Opcode(op) != wire.CloseInput {
			return
		}
		wire.WriteOKStatus(server)
	}()

	if err := c.Input().Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Input().Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
