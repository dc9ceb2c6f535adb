package proxy

import (
	"sync"

	"github.com/loopwire/procproxy/internal/metrics"
	"github.com/loopwire/procproxy/internal/wire"
)

// OutputStream is a writable facade over WRITE_OUT or WRITE_ERR. Each Write
// enqueues one command and reports completion only after the corresponding
// response is received.
type OutputStream struct {
	conn      *Connection
	writeOp   wire.Opcode
	closeOp   wire.Opcode
	direction string
	mu        sync.Mutex
	destroyed bool
}

func newOutputStream(c *Connection, writeOp wire.Opcode) *OutputStream {
	closeOp := wire.CloseOut
	direction := metrics.DirectionOut
	if writeOp == wire.WriteErr {
		closeOp = wire.CloseErr
		direction = metrics.DirectionErr
	}
	return &OutputStream{conn: c, writeOp: writeOp, closeOp: closeOp, direction: direction}
}

// Write sends p as the payload of one WRITE_OUT/WRITE_ERR command. A
// zero-length p is a valid write that transmits no payload bytes.
func (s *OutputStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return 0, ErrConnectionClosed
	}

	err := s.conn.do(s.writeOp, func() error {
		if err := wire.WriteU8(s.conn.conn, byte(s.writeOp)); err != nil {
			return err
		}
		if err := wire.WriteBytes(s.conn.conn, p); err != nil {
			return err
		}
		return wire.ReadStatus(s.conn.conn)
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordBytes(s.direction, len(p))
	return len(p), nil
}

// Close enqueues the matching close command. Destruction of an
// already-destroyed facade is idempotent and does nothing.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.mu.Unlock()

	return s.conn.doClose(func() error {
		if err := wire.WriteU8(s.conn.conn, byte(s.closeOp)); err != nil {
			return err
		}
		return wire.ReadStatus(s.conn.conn)
	})
}

// destroy marks the facade destroyed so further local writes are rejected
// without touching the socket. Safe to call more than once.
func (s *OutputStream) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}
