package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/loopwire/procproxy/internal/logging"
	"github.com/loopwire/procproxy/internal/metrics"
	"github.com/loopwire/procproxy/internal/wire"
)

// DefaultHandshakeTimeout is the deadline applied to each connection's
// handshake read when the acceptor is not configured with an override.
const DefaultHandshakeTimeout = 1000 * time.Millisecond

// TokenValidator decides whether an observed token is acceptable. It may
// block (e.g. on an external lookup); the acceptor calls it once per
// connection attempt before instantiating a Connection.
type TokenValidator func(ctx context.Context, token string) bool

// Consumer receives every Connection that completes its handshake. It is
// never called for an attempt that fails the handshake.
type Consumer func(*Connection)

// Acceptor listens on a loopback socket and turns each accepted connection
// into a validated Connection, or silently discards it.
type Acceptor struct {
	ln               net.Listener
	consumer         Consumer
	validator        TokenValidator
	handshakeTimeout time.Duration
	logger           *slog.Logger
}

// Config configures a new Acceptor.
type Config struct {
	// Consumer is invoked once per Connection that completes its
	// handshake. Required.
	Consumer Consumer

	// Validator is an optional asynchronous predicate over the observed
	// token. A nil Validator accepts every token.
	Validator TokenValidator

	// HandshakeTimeout bounds the 146-byte handshake read. Zero uses
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// Listen binds a loopback TCP listener and returns an Acceptor serving it.
// The caller must call Serve to begin accepting.
func Listen(address string, cfg Config) (*Acceptor, error) {
	if cfg.Consumer == nil {
		return nil, fmt.Errorf("proxy: Config.Consumer is required")
	}
	host, _, err := net.SplitHostPort(address)
	if err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() {
			return nil, fmt.Errorf("proxy: listen address %q is not loopback", address)
		}
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("proxy: listen %q: %w", address, err)
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Acceptor{
		ln:               ln,
		consumer:         cfg.Consumer,
		validator:        cfg.Validator,
		handshakeTimeout: timeout,
		logger:           logger,
	}, nil
}

// Addr returns the bound address, useful when the caller requested an
// ephemeral port via ":0".
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Each accepted socket is handshaken in its own goroutine so a
// slow or hostile peer cannot stall other attempts.
func (a *Acceptor) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.ln.Close()
	}()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go a.handshake(ctx, conn)
	}
}

// Close stops accepting new connections.
func (a *Acceptor) Close() error { return a.ln.Close() }

func (a *Acceptor) handshake(ctx context.Context, conn net.Conn) {
	deadline := time.Now().Add(a.handshakeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return
	}

	block, err := wire.ReadHandshake(conn)
	if err != nil {
		a.logger.Debug("handshake read failed",
			logging.KeyComponent, "acceptor",
			logging.KeyRemoteAddr, conn.RemoteAddr().String(),
			logging.KeyError, err.Error())
		metrics.RecordHandshakeRejection("io")
		conn.Close()
		return
	}

	token, err := wire.ParseHandshake(block)
	if err != nil {
		a.logger.Debug("handshake prefix rejected",
			logging.KeyComponent, "acceptor",
			logging.KeyRemoteAddr, conn.RemoteAddr().String())
		metrics.RecordHandshakeRejection("wrong_prefix")
		conn.Close()
		return
	}

	if a.validator != nil && !a.validator(ctx, token) {
		a.logger.Debug("handshake token rejected",
			logging.KeyComponent, "acceptor",
			logging.KeyRemoteAddr, conn.RemoteAddr().String())
		metrics.RecordHandshakeRejection("policy")
		conn.Close()
		return
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return
	}

	metrics.RecordConnectionAccepted()
	c := New(conn, token, a.logger)
	c.OnClose(metrics.RecordConnectionClosed)
	a.consumer(c)
}
