package proxy

import (
	"io"
	"sync"
	"time"

	"github.com/loopwire/procproxy/internal/metrics"
	"github.com/loopwire/procproxy/internal/wire"
)

// DefaultInputBufferSize is the bounded maximum requested on each
// READ_INPUT poll.
const DefaultInputBufferSize = 8192

// DefaultPollInterval is how long the facade waits between poll attempts
// when READ_INPUT reports "no data yet".
const DefaultPollInterval = 100 * time.Millisecond

// InputStream is a lazy, finite byte sequence backed by READ_INPUT polling.
// Reads are delivered to a consumer callback registered with Listen; no
// polling happens until a consumer is attached. The consumer's return
// value signals demand: false suspends polling until Resume is called.
type InputStream struct {
	conn *Connection

	mu           sync.Mutex
	cond         *sync.Cond
	bufferSize   int
	pollInterval time.Duration
	consumer     func([]byte) bool
	onEOF        func()
	started      bool
	destroyed    bool
	paused       bool
	stop         chan struct{}
	done         chan struct{}
}

func newInputStream(c *Connection) *InputStream {
	s := &InputStream{
		conn:         c,
		bufferSize:   DefaultInputBufferSize,
		pollInterval: DefaultPollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetPollInterval overrides the default polling interval. Must be called
// before Listen.
func (s *InputStream) SetPollInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.pollInterval = d
	}
}

// Listen attaches a consumer and an end-of-stream callback, and starts
// polling. Calling Listen more than once has no additional effect.
func (s *InputStream) Listen(onData func([]byte) bool, onEOF func()) {
	s.mu.Lock()
	if s.started || s.destroyed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.consumer = onData
	s.onEOF = onEOF
	s.mu.Unlock()

	go s.pollLoop()
}

// Resume lifts a suspension caused by a consumer signalling backpressure.
func (s *InputStream) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *InputStream) pollLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, data, err := s.read()
		if err != nil {
			return
		}
		switch {
		case n < 0:
			s.mu.Lock()
			onEOF := s.onEOF
			s.mu.Unlock()
			if onEOF != nil {
				onEOF()
			}
			return
		case n == 0:
			select {
			case <-time.After(s.pollInterval):
			case <-s.stop:
				return
			}
		default:
			metrics.RecordBytes(metrics.DirectionIn, len(data))
			s.mu.Lock()
			consumer := s.consumer
			s.mu.Unlock()
			wantMore := true
			if consumer != nil {
				wantMore = consumer(data)
			}
			if !wantMore && s.waitForDemand() {
				return
			}
		}
	}
}

// waitForDemand blocks until Resume is called or the facade is destroyed.
// Returns true if the caller should stop polling entirely.
func (s *InputStream) waitForDemand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	for s.paused && !s.destroyed {
		s.cond.Wait()
	}
	return s.destroyed
}

// read issues one READ_INPUT and decodes n plus any trailing payload.
func (s *InputStream) read() (n int32, data []byte, err error) {
	readErr := s.conn.do(wire.ReadInput, func() error {
		if err := wire.WriteU8(s.conn.conn, byte(wire.ReadInput)); err != nil {
			return err
		}
		if err := wire.WriteU32(s.conn.conn, uint32(s.bufferSize)); err != nil {
			return err
		}
		if err := wire.ReadStatus(s.conn.conn); err != nil {
			return err
		}
		got, err := wire.ReadI32(s.conn.conn)
		if err != nil {
			return err
		}
		n = got
		if got > 0 {
			buf := make([]byte, got)
			if _, err := io.ReadFull(s.conn.conn, buf); err != nil {
				return err
			}
			data = buf
		}
		return nil
	})
	return n, data, readErr
}

// Close enqueues CLOSE_INPUT and terminates the sequence even if the
// endpoint had more buffered data. Closing an already-destroyed facade is
// a no-op.
func (s *InputStream) Close() error {
	if alreadyDestroyed := s.destroy(); alreadyDestroyed {
		return nil
	}
	return s.conn.doClose(func() error {
		if err := wire.WriteU8(s.conn.conn, byte(wire.CloseInput)); err != nil {
			return err
		}
		return wire.ReadStatus(s.conn.conn)
	})
}

// destroy stops further polling immediately; in-flight reads complete
// normally. Reports whether the facade was already destroyed.
func (s *InputStream) destroy() bool {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return true
	}
	s.destroyed = true
	started := s.started
	s.mu.Unlock()

	close(s.stop)
	s.cond.Broadcast()
	if started {
		<-s.done
	}
	return false
}
