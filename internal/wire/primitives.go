// Package wire implements the framed binary protocol shared by the
// native endpoint and the controller-side connection: fixed-width
// integers, length-prefixed strings, opcodes, the response envelope, and
// the handshake block.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxStringLen bounds the length prefix accepted for a wire string,
// guarding against a hostile or corrupt peer claiming a multi-gigabyte
// body.
const MaxStringLen = 64 * 1024 * 1024

// ReadU8 reads a single byte.
func ReadU8(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteU8 writes a single byte.
func WriteU8(w io.Writer, v byte) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadU32 reads a little-endian uint32.
func ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteU32 writes a little-endian uint32.
func WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadI32 reads a little-endian int32.
func ReadI32(r io.Reader) (int32, error) {
	v, err := ReadU32(r)
	return int32(v), err
}

// WriteI32 writes a little-endian int32.
func WriteI32(w io.Writer, v int32) error {
	return WriteU32(w, uint32(v))
}

// ReadString reads a u32 length prefix followed by that many bytes of
// UTF-8 text. The bytes are not validated as UTF-8; callers that need
// strict validation should use utf8.Valid on the result.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadU32(r)
	if err != nil {
		return "", err
	}
	if n > MaxStringLen {
		return "", fmt.Errorf("wire: string length %d exceeds maximum %d", n, MaxStringLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteString writes s as a u32 length prefix followed by its raw bytes.
func WriteString(w io.Writer, s string) error {
	if err := WriteU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// ReadBytes reads a u32 length prefix followed by that many raw bytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadU32(r)
	if err != nil {
		return nil, err
	}
	if n > MaxStringLen {
		return nil, fmt.Errorf("wire: byte length %d exceeds maximum %d", n, MaxStringLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBytes writes p as a u32 length prefix followed by its raw bytes.
// A zero-length p writes only the prefix.
func WriteBytes(w io.Writer, p []byte) error {
	if err := WriteU32(w, uint32(len(p))); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	_, err := w.Write(p)
	return err
}
