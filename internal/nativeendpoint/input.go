package nativeendpoint

import "fmt"

// inputState tracks the native side's view of its own stdin: whether the
// controller has explicitly closed it (CLOSE_INPUT), and whether a
// natural end-of-stream has already been observed.
type inputState struct {
	closed bool
	eof    bool
	read   func(max int) (n int, buf []byte, closed bool, err error)
}

func newInputState() *inputState {
	return &inputState{read: platformTryRead}
}

// tryRead performs one non-blocking read attempt of at most max bytes.
// n is the number of bytes placed in the returned slice; eofNow is true
// when input is at its terminal end: this call observed end-of-input, or
// an earlier call or CLOSE_INPUT already did, in which case the
// underlying reader is not called again (n is always 0 when eofNow is
// true, per the wire contract's n=-1 mapping).
func (s *inputState) tryRead(max int) (n int, data []byte, eofNow bool) {
	if s.closed || s.eof {
		return 0, nil, true
	}
	if max <= 0 {
		return 0, nil, false
	}
	got, buf, closed, err := s.read(max)
	if err != nil || closed {
		s.eof = true
		return 0, nil, true
	}
	return got, buf, false
}

// closeOnce marks stdin as explicitly closed, returning an error if it
// was already closed by a prior CLOSE_INPUT.
func (s *inputState) closeOnce() error {
	if s.closed {
		return fmt.Errorf("stdin is already closed")
	}
	s.closed = true
	return nil
}

// isConnected reports whether input is still open or may yet deliver
// more bytes: false only once both explicitly closed/EOF has been
// observed and no further bytes are expected.
func (s *inputState) isConnected() bool {
	return !s.closed && !s.eof
}
