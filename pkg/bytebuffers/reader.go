package bytebuffers

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by typed reads that would run past the end of
// the buffered content.
var ErrShortBuffer = errors.New("bytebuffers: read past end of buffer")

// Reader is a read-only, bounds-tracked cursor over a caller-supplied byte
// range. It does not own the memory; the caller must keep the slice alive
// for the Reader's lifetime. Constructed per record, discarded after decode.
type Reader struct {
	buf []byte
	off int
}

func NewReader(p []byte) *Reader {
	return &Reader{buf: p}
}

// Len reports the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

func (r *Reader) Offset() int { return r.off }

// Bytes returns the unread remainder, aliasing the underlying slice.
func (r *Reader) Bytes() []byte { return r.buf[r.off:] }

func (r *Reader) ReadByte() (byte, error) {
	if r.Len() < 1 {
		return 0, ErrShortBuffer
	}
	c := r.buf[r.off]
	r.off++
	return c, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if r.Len() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// ReadUint24 decodes a 3-byte big-endian value, the TLS handshake message
// length encoding.
func (r *Reader) ReadUint24() (uint32, error) {
	if r.Len() < 3 {
		return 0, ErrShortBuffer
	}
	p := r.buf[r.off:]
	r.off += 3
	return uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if r.Len() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// Read fills p completely or fails without consuming anything.
func (r *Reader) Read(p []byte) error {
	if r.Len() < len(p) {
		return ErrShortBuffer
	}
	copy(p, r.buf[r.off:])
	r.off += len(p)
	return nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrShortBuffer
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}

func (r *Reader) Skip(n int) error {
	if n < 0 || r.Len() < n {
		return ErrShortBuffer
	}
	r.off += n
	return nil
}
