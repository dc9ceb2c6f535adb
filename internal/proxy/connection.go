// Package proxy implements the controller side of the process proxy
// protocol: a per-connection command queue sitting on top of a validated
// socket, and the stream facades built on top of it.
package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopwire/procproxy/internal/logging"
	"github.com/loopwire/procproxy/internal/metrics"
	"github.com/loopwire/procproxy/internal/wire"
)

// State is the connection lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateExitSent
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateExitSent:
		return "EXIT_SENT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connection is the controller-side handle to one native endpoint. It owns
// the validated socket and a private serial command queue; every exported
// operation enqueues onto that queue so at most one command is ever in
// flight at a time.
type Connection struct {
	conn   net.Conn
	token  string
	logger *slog.Logger
	queue  *queue

	state     atomic.Int32
	closeOnce sync.Once
	closed    chan struct{}

	cbMu    sync.Mutex
	onClose []func()
	onError []func(error)

	input  *InputStream
	stdout *OutputStream
	stderr *OutputStream
}

// New constructs a Connection around an already-handshaken socket and the
// token extracted from it. The caller has already validated the handshake;
// New does not read or write anything.
func New(conn net.Conn, token string, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = logging.NopLogger()
	}
	c := &Connection{
		conn:   conn,
		token:  token,
		logger: logger,
		queue:  newQueue(),
		closed: make(chan struct{}),
	}
	c.input = newInputStream(c)
	c.stdout = newOutputStream(c, wire.WriteOut)
	c.stderr = newOutputStream(c, wire.WriteErr)
	return c
}

// Token returns the handshake token observed for this connection.
func (c *Connection) Token() string { return c.token }

// Closed reports whether the connection is closed: true once the socket
// has closed, or once an EXIT command has been successfully dispatched
// (from that point no further command will ever be accepted, even while
// the socket is still winding down on the native side).
func (c *Connection) Closed() bool {
	switch State(c.state.Load()) {
	case StateExitSent, StateClosed:
		return true
	default:
		return false
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Input returns the readable input stream facade.
func (c *Connection) Input() *InputStream { return c.input }

// Stdout returns the writable stdout stream facade.
func (c *Connection) Stdout() *OutputStream { return c.stdout }

// Stderr returns the writable stderr stream facade.
func (c *Connection) Stderr() *OutputStream { return c.stderr }

// OnClose registers a callback fired exactly once when the connection
// closes.
func (c *Connection) OnClose(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// OnError registers a callback that may fire zero or more times, once per
// observed transport failure.
func (c *Connection) OnError(fn func(error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onError = append(c.onError, fn)
}

// do runs fn under the queue discipline: rejected locally without touching
// the socket if the connection is closed or exit has already been sent,
// otherwise run serially in submission order. A transport-level error
// returned by fn tears the connection down. op labels the command metrics
// recorded once fn returns.
func (c *Connection) do(op wire.Opcode, fn func() error) error {
	resultCh := make(chan error, 1)
	accepted := c.queue.submit(func() {
		switch State(c.state.Load()) {
		case StateClosed, StateExitSent:
			resultCh <- ErrConnectionClosed
			return
		}
		start := time.Now()
		err := fn()
		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultError
		}
		metrics.RecordCommand(op.String(), result, time.Since(start).Seconds())
		if isTransportError(err) {
			c.fail(err)
		}
		resultCh <- err
	})
	if !accepted {
		return ErrConnectionClosed
	}
	return <-resultCh
}

// doClose runs a stream-close command. Unlike do, a connection that has
// already closed makes this a successful no-op (the stream is, de facto,
// closed); exit-sent still rejects, matching the queue discipline exit
// itself uses.
func (c *Connection) doClose(fn func() error) error {
	resultCh := make(chan error, 1)
	accepted := c.queue.submit(func() {
		switch State(c.state.Load()) {
		case StateClosed:
			resultCh <- nil
			return
		case StateExitSent:
			resultCh <- ErrConnectionClosed
			return
		}
		err := fn()
		if isTransportError(err) {
			c.fail(err)
		}
		resultCh <- err
	})
	if !accepted {
		return nil
	}
	return <-resultCh
}

// GetArgs retrieves the native process's argv.
func (c *Connection) GetArgs() ([]string, error) {
	var args []string
	err := c.do(wire.GetArgs, func() error {
		if err := wire.WriteU8(c.conn, byte(wire.GetArgs)); err != nil {
			return err
		}
		if err := wire.ReadStatus(c.conn); err != nil {
			return err
		}
		count, err := wire.ReadU32(c.conn)
		if err != nil {
			return err
		}
		args = make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			s, err := wire.ReadString(c.conn)
			if err != nil {
				return err
			}
			args = append(args, s)
		}
		return nil
	})
	return args, err
}

// GetEnv retrieves the native process's environment. Entries lacking an
// "=" are silently dropped, per the wire contract.
func (c *Connection) GetEnv() (map[string]string, error) {
	env := make(map[string]string)
	err := c.do(wire.GetEnv, func() error {
		if err := wire.WriteU8(c.conn, byte(wire.GetEnv)); err != nil {
			return err
		}
		if err := wire.ReadStatus(c.conn); err != nil {
			return err
		}
		count, err := wire.ReadU32(c.conn)
		if err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			entry, err := wire.ReadString(c.conn)
			if err != nil {
				return err
			}
			if key, val, ok := splitEnvEntry(entry); ok {
				env[key] = val
			}
		}
		return nil
	})
	return env, err
}

func splitEnvEntry(entry string) (key, val string, ok bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], true
		}
	}
	return "", "", false
}

// GetCwd retrieves the native process's current working directory.
func (c *Connection) GetCwd() (string, error) {
	var cwd string
	err := c.do(wire.GetCwd, func() error {
		if err := wire.WriteU8(c.conn, byte(wire.GetCwd)); err != nil {
			return err
		}
		if err := wire.ReadStatus(c.conn); err != nil {
			return err
		}
		s, err := wire.ReadString(c.conn)
		if err != nil {
			return err
		}
		cwd = s
		return nil
	})
	return cwd, err
}

// IsInputConnected reports whether input is attached and either not yet
// at end-of-stream or still has buffered bytes to deliver.
func (c *Connection) IsInputConnected() (bool, error) {
	var connected bool
	err := c.do(wire.IsInputConnected, func() error {
		if err := wire.WriteU8(c.conn, byte(wire.IsInputConnected)); err != nil {
			return err
		}
		if err := wire.ReadStatus(c.conn); err != nil {
			return err
		}
		v, err := wire.ReadI32(c.conn)
		if err != nil {
			return err
		}
		connected = v != 0
		return nil
	})
	return connected, err
}

// Exit destroys the three stream facades (flushing any writes queued ahead
// of it in FIFO order), then sends EXIT with the given code. On success the
// connection latches ExitSent, rejects all further operations locally, and
// starts watching the socket for the native side's disconnect so the
// connection still reaches Closed and fires the close event once that
// happens, with nothing left to drive it through the command queue.
func (c *Connection) Exit(code int32) error {
	c.input.destroy()
	c.stdout.destroy()
	c.stderr.destroy()

	err := c.do(wire.Exit, func() error {
		if err := wire.WriteU8(c.conn, byte(wire.Exit)); err != nil {
			return err
		}
		if err := wire.WriteI32(c.conn, code); err != nil {
			return err
		}
		return wire.ReadStatus(c.conn)
	})
	if err == nil {
		c.state.CompareAndSwap(int32(StateRunning), int32(StateExitSent))
		go c.watchForClose()
	}
	return err
}

// watchForClose blocks on a read of the raw socket after EXIT has been
// dispatched. Nothing else touches the socket once ExitSent is latched
// (do rejects every further command before it reaches the wire), so this
// is the only reader and cannot race the command queue. It returns, and
// drives the connection to Closed, as soon as the native side hangs up.
func (c *Connection) watchForClose() {
	buf := make([]byte, 1)
	_, err := c.conn.Read(buf)
	if err == nil {
		err = fmt.Errorf("proxy: unexpected data after EXIT")
	}
	if err == io.EOF {
		c.Close()
		return
	}
	c.fail(err)
}

// fail marks the connection closed, fires onError then onClose, and tears
// down the queue and socket. Safe to call multiple times; only the first
// call has effect.
func (c *Connection) fail(transportErr error) {
	c.cbMu.Lock()
	errCbs := append([]func(error){}, c.onError...)
	c.cbMu.Unlock()
	if transportErr != nil {
		for _, fn := range errCbs {
			fn(transportErr)
		}
	}
	c.Close()
}

// Close tears the connection down. Idempotent: closing an already-closed
// Connection is a no-op.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.queue.stop()
		err = c.conn.Close()
		close(c.closed)

		c.cbMu.Lock()
		closeCbs := append([]func(){}, c.onClose...)
		c.cbMu.Unlock()
		for _, fn := range closeCbs {
			fn()
		}
	})
	return err
}

// Done returns a channel closed when the connection has closed.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// RemoteAddr returns the peer address, or "" if unavailable.
func (c *Connection) RemoteAddr() string {
	if c.conn == nil || c.conn.RemoteAddr() == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*wire.ProtocolError); ok {
		return false
	}
	return true
}

func (c *Connection) logError(op string, err error) {
	c.logger.Debug("proxy operation failed",
		logging.KeyComponent, "connection",
		"op", op,
		logging.KeyError, fmt.Sprintf("%v", err))
}
