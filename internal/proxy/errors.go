package proxy

import "errors"

var (
	// ErrConnectionClosed is returned by any operation submitted after the
	// socket has closed or after exit has already been sent.
	ErrConnectionClosed = errors.New("proxy: connection already closed")

	// ErrHandshakeTimeout names a client that does not complete the
	// 146-byte handshake within the configured deadline. The acceptor does
	// not return it: it closes such a socket and records a rejection
	// metric.
	ErrHandshakeTimeout = errors.New("proxy: handshake timeout")

	// ErrHandshakeRejected names a handshake whose prefix is wrong or whose
	// token the validation policy rejects. The acceptor does not return it:
	// it closes such a socket and records a rejection metric.
	ErrHandshakeRejected = errors.New("proxy: handshake rejected")
)
