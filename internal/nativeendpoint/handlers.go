package nativeendpoint

import (
	"os"

	"github.com/loopwire/procproxy/internal/wire"
)

// dispatch reads the request payload for op, performs its side effect,
// and writes the response envelope in full. The returned error is only
// non-nil for fatal I/O failures on the connection itself; ordinary
// command failures are encoded on the wire as a non-zero status.
func (ep *Endpoint) dispatch(op wire.Opcode) error {
	switch op {
	case wire.GetArgs:
		return ep.handleGetArgs()
	case wire.ReadInput:
		return ep.handleReadInput()
	case wire.WriteOut:
		return ep.handleWrite(os.Stdout)
	case wire.WriteErr:
		return ep.handleWrite(os.Stderr)
	case wire.GetCwd:
		return ep.handleGetCwd()
	case wire.GetEnv:
		return ep.handleGetEnv()
	case wire.Exit:
		return ep.handleExit()
	case wire.CloseInput:
		return ep.handleCloseInput()
	case wire.CloseOut:
		return ep.handleCloseStream(&ep.stdout, "stdout")
	case wire.CloseErr:
		return ep.handleCloseStream(&ep.stderr, "stderr")
	case wire.IsInputConnected:
		return ep.handleIsInputConnected()
	default:
		return nil // unreachable: loop() already validates op.Valid()
	}
}

func (ep *Endpoint) handleGetArgs() error {
	if err := wire.WriteOKStatus(ep.conn); err != nil {
		return err
	}
	if err := wire.WriteU32(ep.conn, uint32(len(ep.args))); err != nil {
		return err
	}
	for _, a := range ep.args {
		if err := wire.WriteString(ep.conn, a); err != nil {
			return err
		}
	}
	return nil
}

func (ep *Endpoint) handleReadInput() error {
	maxBytes, err := wire.ReadU32(ep.conn)
	if err != nil {
		return err
	}

	n, data, closedNow := ep.stdin.tryRead(int(maxBytes))
	if err := wire.WriteOKStatus(ep.conn); err != nil {
		return err
	}
	if closedNow {
		return wire.WriteI32(ep.conn, -1)
	}
	if n == 0 {
		return wire.WriteI32(ep.conn, 0)
	}
	if err := wire.WriteI32(ep.conn, int32(n)); err != nil {
		return err
	}
	_, err = ep.conn.Write(data[:n])
	return err
}

func (ep *Endpoint) handleWrite(dst *os.File) error {
	payload, err := wire.ReadBytes(ep.conn)
	if err != nil {
		return err
	}
	if _, err := dst.Write(payload); err != nil {
		return wire.WriteErrorStatus(ep.conn, -1, err.Error())
	}
	return wire.WriteOKStatus(ep.conn)
}

func (ep *Endpoint) handleGetCwd() error {
	cwd, err := getCwd()
	if err != nil {
		return wire.WriteErrorStatus(ep.conn, -1, err.Error())
	}
	if err := wire.WriteOKStatus(ep.conn); err != nil {
		return err
	}
	return wire.WriteString(ep.conn, cwd)
}

func (ep *Endpoint) handleGetEnv() error {
	env := os.Environ()
	if err := wire.WriteOKStatus(ep.conn); err != nil {
		return err
	}
	if err := wire.WriteU32(ep.conn, uint32(len(env))); err != nil {
		return err
	}
	for _, e := range env {
		if err := wire.WriteString(ep.conn, e); err != nil {
			return err
		}
	}
	return nil
}

func (ep *Endpoint) handleExit() error {
	code, err := wire.ReadI32(ep.conn)
	if err != nil {
		return err
	}
	if err := wire.WriteOKStatus(ep.conn); err != nil {
		return err
	}
	// The status must be the last byte observed on the socket before the
	// process terminates, so we exit directly here per the EXIT ordering
	// guarantee in §4.2. os.Exit does not run the caller's deferred
	// conn.Close; the socket is closed when the process ends.
	os.Exit(int(code))
	return nil // unreachable
}

func (ep *Endpoint) handleCloseInput() error {
	if err := ep.stdin.closeOnce(); err != nil {
		return wire.WriteErrorStatus(ep.conn, -1, err.Error())
	}
	return wire.WriteOKStatus(ep.conn)
}

func (ep *Endpoint) handleCloseStream(s *streamState, name string) error {
	if err := s.closeOnce(name); err != nil {
		return wire.WriteErrorStatus(ep.conn, -1, err.Error())
	}
	return wire.WriteOKStatus(ep.conn)
}

func (ep *Endpoint) handleIsInputConnected() error {
	connected := ep.stdin.isConnected()
	if err := wire.WriteOKStatus(ep.conn); err != nil {
		return err
	}
	var v int32
	if connected {
		v = 1
	}
	return wire.WriteI32(ep.conn, v)
}
