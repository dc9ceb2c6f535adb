// Package nativeendpoint implements the child-process side of the
// protocol: it dials the controller's loopback listener, sends the
// handshake, then serves command requests until end-of-stream, a fatal
// protocol error, or an EXIT command terminates the process.
package nativeendpoint

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/loopwire/procproxy/internal/logging"
	"github.com/loopwire/procproxy/internal/wire"
)

// PortVar and TokenVar are the environment variable names the native
// endpoint reads at boot.
const (
	PortVar  = "PROCESS_PROXY_PORT"
	TokenVar = "PROCESS_PROXY_TOKEN"
)

// Exit codes for boot failures, distinct from any code later supplied by
// an EXIT command.
const (
	ExitBadPort     = 70
	ExitDialFailed  = 71
	ExitHandshakeIO = 72
)

// Endpoint is the native side's process-global state: captured startup
// arguments, and the open/closed status of the three standard streams.
type Endpoint struct {
	conn   net.Conn
	args   []string
	logger *slog.Logger

	stdin  *inputState
	stdout streamState
	stderr streamState
}

// streamState tracks whether a stream has already received an explicit
// close command; a second close is a protocol error with a message.
type streamState struct {
	closed bool
}

func (s *streamState) closeOnce(name string) error {
	if s.closed {
		return fmt.Errorf("%s is already closed", name)
	}
	s.closed = true
	return nil
}

// Run performs the boot sequence and then serves the command loop until
// the loop ends. It calls os.Exit itself on boot failure or on an EXIT
// command, matching the native endpoint's process-level contract; it
// otherwise returns once the loop ends (e.g. on a clean end-of-stream).
func Run(args []string) {
	logger := logging.NewLogger(os.Getenv("PROCPROXY_LOG_LEVEL"), os.Getenv("PROCPROXY_LOG_FORMAT"))

	portStr := os.Getenv(PortVar)
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		fmt.Fprintf(os.Stderr, "procproxy: invalid or missing %s=%q\n", PortVar, portStr)
		os.Exit(ExitBadPort)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "procproxy: dial 127.0.0.1:%d: %v\n", port, err)
		os.Exit(ExitDialFailed)
	}
	defer conn.Close()

	token := os.Getenv(TokenVar)
	handshake := wire.BuildHandshake(token)
	if _, err := conn.Write(handshake); err != nil {
		fmt.Fprintf(os.Stderr, "procproxy: handshake send failed: %v\n", err)
		os.Exit(ExitHandshakeIO)
	}

	ep := &Endpoint{
		conn:   conn,
		args:   args,
		logger: logger,
		stdin:  newInputState(),
	}
	ep.loop()
}

// loop reads one opcode at a time and dispatches to its handler until
// end-of-stream, a fatal I/O error, or an unknown opcode. It never
// returns a nonzero process exit by itself; only handleExit does that.
func (ep *Endpoint) loop() {
	for {
		b, err := wire.ReadU8(ep.conn)
		if err != nil {
			return
		}
		op := wire.Opcode(b)
		if !op.Valid() {
			ep.logger.Error("unknown opcode, terminating loop", logging.KeyOpcode, fmt.Sprintf("%#x", b))
			return
		}
		if err := ep.dispatch(op); err != nil {
			ep.logger.Error("fatal I/O error handling command", logging.KeyOpcode, op.String(), logging.KeyError, err.Error())
			return
		}
	}
}
