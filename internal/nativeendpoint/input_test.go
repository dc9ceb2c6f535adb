package nativeendpoint

import "testing"

func TestInputStateTryReadData(t *testing.T) {
	s := newInputState()
	s.read = func(max int) (int, []byte, bool, error) {
		return 3, []byte("abc"), false, nil
	}
	n, data, eof := s.tryRead(8192)
	if eof {
		t.Fatal("expected not eof")
	}
	if n != 3 || string(data[:n]) != "abc" {
		t.Errorf("got n=%d data=%q", n, data[:n])
	}
}

func TestInputStateTryReadWouldBlock(t *testing.T) {
	s := newInputState()
	s.read = func(max int) (int, []byte, bool, error) {
		return 0, nil, false, nil
	}
	n, _, eof := s.tryRead(8192)
	if eof {
		t.Fatal("expected not eof on would-block")
	}
	if n != 0 {
		t.Errorf("expected n=0, got %d", n)
	}
}

func TestInputStateTryReadEOF(t *testing.T) {
	s := newInputState()
	s.read = func(max int) (int, []byte, bool, error) {
		return 0, nil, true, nil
	}
	_, _, eof := s.tryRead(8192)
	if !eof {
		t.Fatal("expected eof")
	}
	// Subsequent reads must not call the underlying reader again.
	s.read = func(max int) (int, []byte, bool, error) {
		t.Fatal("read should not be called again after eof")
		return 0, nil, false, nil
	}
	_, _, eof2 := s.tryRead(8192)
	if !eof2 {
		t.Fatal("expected eof to stick")
	}
}

func TestInputStateCloseOnceThenErrors(t *testing.T) {
	s := newInputState()
	if err := s.closeOnce(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.closeOnce(); err == nil {
		t.Fatal("expected error on second close")
	}
}

func TestInputStateIsConnected(t *testing.T) {
	s := newInputState()
	if !s.isConnected() {
		t.Fatal("expected connected before any close/eof")
	}
	s.read = func(max int) (int, []byte, bool, error) {
		return 5, []byte("hello"), false, nil
	}
	s.tryRead(8192)
	if !s.isConnected() {
		t.Fatal("expected still connected after a data read")
	}
	s.read = func(max int) (int, []byte, bool, error) {
		return 0, nil, true, nil
	}
	s.tryRead(8192)
	if s.isConnected() {
		t.Fatal("expected disconnected after eof")
	}
}
