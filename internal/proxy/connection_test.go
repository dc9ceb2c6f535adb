package proxy

import (
	"net"
	"testing"
	"time"

	"github.com/loopwire/procproxy/internal/wire"
)

func newTestPair(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := New(client, "test-token", nil)
	t.Cleanup(func() { c.Close() })
	return c, server
}

func TestConnectionGetArgs(t *testing.T) {
	c, server := newTestPair(t)

	go func() {
		op, err := wire.ReadU8(server)
		if err != nil || wire.Opcode(op) != wire.GetArgs {
			return
		}
		wire.WriteOKStatus(server)
		wire.WriteU32(server, 2)
		wire.WriteString(server, "proxy")
		wire.WriteString(server, "arg1")
	}()

	args, err := c.GetArgs()
	if err != nil {
		t.Fatalf("GetArgs: %v", err)
	}
	want := []string{"proxy", "arg1"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestConnectionGetEnvDropsEntriesWithoutEquals(t *testing.T) {
	c, server := newTestPair(t)

	go func() {
		op, _ := wire.ReadU8(server)
		if wire.Opcode(op) != wire.GetEnv {
			return
		}
		wire.WriteOKStatus(server)
		wire.WriteU32(server, 2)
		wire.WriteString(server, "PATH=/usr/bin")
		wire.WriteString(server, "malformed_no_equals")
	}()

	env, err := c.GetEnv()
	if err != nil {
		t.Fatalf("GetEnv: %v", err)
	}
	if len(env) != 1 || env["PATH"] != "/usr/bin" {
		t.Fatalf("env = %v, want just PATH=/usr/bin", env)
	}
}

func TestConnectionExitLatchesExitSent(t *testing.T) {
	c, server := newTestPair(t)

	go func() {
		op, _ := wire.ReadU8(server)
		if wire.Opcode(op) != wire.Exit {
			return
		}
		wire.ReadI32(server) // code
		wire.WriteOKStatus(server)
	}()

	if err := c.Exit(42); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if c.State() != StateExitSent {
		t.Fatalf("state = %v, want ExitSent", c.State())
	}
	if !c.Closed() {
		t.Fatal("Closed() = false after a successful Exit, want true")
	}

	// A subsequent operation must reject locally without touching the wire.
	done := make(chan error, 1)
	go func() {
		_, err := c.GetArgs()
		done <- err
	}()
	select {
	case err := <-done:
		if err != ErrConnectionClosed {
			t.Fatalf("GetArgs after exit = %v, want ErrConnectionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GetArgs after exit hung — must reject locally")
	}
}

func TestConnectionExitWatchesForNativeDisconnect(t *testing.T) {
	c, server := newTestPair(t)

	go func() {
		op, _ := wire.ReadU8(server)
		if wire.Opcode(op) != wire.Exit {
			return
		}
		wire.ReadI32(server) // code
		wire.WriteOKStatus(server)
		server.Close() // simulate the native process terminating
	}()

	closed := make(chan struct{})
	c.OnClose(func() { close(closed) })

	if err := c.Exit(0); err != nil {
		t.Fatalf("Exit: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("OnClose never fired after the native side disconnected post-EXIT")
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", c.State())
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	c, _ := newTestPair(t)
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConnectionOnCloseFiresOnce(t *testing.T) {
	c, _ := newTestPair(t)
	count := 0
	c.OnClose(func() { count++ })
	c.Close()
	c.Close()
	if count != 1 {
		t.Fatalf("OnClose fired %d times, want 1", count)
	}
}

func TestOutputCloseNoOpWhenConnectionAlreadyClosed(t *testing.T) {
	c, _ := newTestPair(t)
	c.Close()

	if err := c.Stdout().Close(); err != nil {
		t.Fatalf("Stdout().Close() after connection close = %v, want nil no-op", err)
	}
}

func TestGetArgsAfterConnectionClosedRejects(t *testing.T) {
	c, _ := newTestPair(t)
	c.Close()

	if _, err := c.GetArgs(); err != ErrConnectionClosed {
		t.Fatalf("GetArgs after close = %v, want ErrConnectionClosed", err)
	}
}
