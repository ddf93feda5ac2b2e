// Package bytebuffers provides the byte buffers used by the TLS record and
// handshake layers: an owned growable Buffer for serializing outgoing records
// and accumulating incoming ones, and a borrowed Reader for decoding a single
// received record without copying.
package bytebuffers

import "encoding/binary"

const minCapacity = 256

// Buffer is an owned, dynamically-resized byte buffer with independent write
// size and read cursor. Writes append at size, typed reads advance readPos.
// Invariant: 0 <= readPos <= size <= cap.
type Buffer struct {
	buf     []byte
	size    int
	readPos int
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Len() int { return b.size }

func (b *Buffer) Cap() int { return cap(b.buf) }

// Remaining reports the number of unread bytes between readPos and size.
func (b *Buffer) Remaining() int { return b.size - b.readPos }

// Bytes returns the written content. The slice aliases the buffer and is
// invalidated by the next append.
func (b *Buffer) Bytes() []byte { return b.buf[:b.size] }

// Unread returns the content between readPos and size, aliasing the buffer.
func (b *Buffer) Unread() []byte { return b.buf[b.readPos:b.size] }

func (b *Buffer) ReadPos() int { return b.readPos }

// CheckSize ensures capacity for n more bytes. On overflow the buffer grows
// to max(256, (size+n)*4) and existing content is copied over.
func (b *Buffer) CheckSize(n int) {
	if b.size+n <= cap(b.buf) {
		return
	}
	newCap := (b.size + n) * 4
	if newCap < minCapacity {
		newCap = minCapacity
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf[:b.size])
	b.buf = grown
}

// Append copies p at the current end and returns the pre-append offset, so
// callers can patch a length field once variable-size content is known.
func (b *Buffer) Append(p []byte) int {
	b.CheckSize(len(p))
	off := b.size
	copy(b.buf[off:cap(b.buf)], p)
	b.size += len(p)
	return off
}

func (b *Buffer) AppendByte(c byte) int {
	b.CheckSize(1)
	off := b.size
	b.buf[:cap(b.buf)][off] = c
	b.size++
	return off
}

func (b *Buffer) AppendUint16(v uint16) int {
	b.CheckSize(2)
	off := b.size
	binary.BigEndian.PutUint16(b.buf[off:cap(b.buf)], v)
	b.size += 2
	return off
}

// AppendUint24 writes the low 24 bits of v big-endian, the length encoding
// used by TLS handshake message headers.
func (b *Buffer) AppendUint24(v uint32) int {
	b.CheckSize(3)
	off := b.size
	buf := b.buf[:cap(b.buf)]
	buf[off] = byte(v >> 16)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v)
	b.size += 3
	return off
}

func (b *Buffer) AppendUint64(v uint64) int {
	b.CheckSize(8)
	off := b.size
	binary.BigEndian.PutUint64(b.buf[off:cap(b.buf)], v)
	b.size += 8
	return off
}

// Reserve advances size by n without writing and returns the offset of the
// reserved region. Used to leave room for a length field or an AEAD tag that
// is computed later.
func (b *Buffer) Reserve(n int) int {
	b.CheckSize(n)
	off := b.size
	b.size += n
	return off
}

// Allocate ensures capacity for n more bytes and returns the writable region
// past the current end. The region is committed with AllocatedWrote.
func (b *Buffer) Allocate(n int) []byte {
	b.CheckSize(n)
	return b.buf[b.size : b.size+n]
}

// AllocatedWrote commits n bytes previously filled through Allocate.
func (b *Buffer) AllocatedWrote(n int) {
	b.size += n
}

// PatchUint16 overwrites two bytes at off with v big-endian. off must point
// into already-written (or reserved) content.
func (b *Buffer) PatchUint16(off int, v uint16) {
	binary.BigEndian.PutUint16(b.buf[off:], v)
}

func (b *Buffer) PatchUint24(off int, v uint32) {
	b.buf[off] = byte(v >> 16)
	b.buf[off+1] = byte(v >> 8)
	b.buf[off+2] = byte(v)
}

// SetSize truncates or establishes the logical size directly, growing the
// allocation if needed. Used after in-place decrypt where the plaintext is
// shorter than the ciphertext.
func (b *Buffer) SetSize(n int) {
	if n > cap(b.buf) {
		b.size = 0
		b.CheckSize(n)
	}
	b.size = n
	if b.readPos > b.size {
		b.readPos = b.size
	}
}

// Discard drops n consumed bytes from the front, moving the remainder down.
// Used to remove complete records from the receive buffer.
func (b *Buffer) Discard(n int) {
	if n <= 0 {
		return
	}
	if n >= b.size {
		b.size = 0
		b.readPos = 0
		return
	}
	copy(b.buf, b.buf[n:b.size])
	b.size -= n
	if b.readPos > n {
		b.readPos -= n
	} else {
		b.readPos = 0
	}
}

// Clear releases the allocation and resets all fields. Used when the buffer
// changes ownership context, not between records.
func (b *Buffer) Clear() {
	b.buf = nil
	b.size = 0
	b.readPos = 0
}

func (b *Buffer) ResetRead() { b.readPos = 0 }

// ReadByte reads one byte at readPos and advances it.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	c := b.buf[b.readPos]
	b.readPos++
	return c, nil
}

func (b *Buffer) ReadUint16() (uint16, error) {
	if b.Remaining() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(b.buf[b.readPos:])
	b.readPos += 2
	return v, nil
}

// ReadUint24 decodes the 3-byte big-endian length field of a TLS handshake
// message header.
func (b *Buffer) ReadUint24() (uint32, error) {
	if b.Remaining() < 3 {
		return 0, ErrShortBuffer
	}
	p := b.buf[b.readPos:]
	b.readPos += 3
	return uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]), nil
}

func (b *Buffer) ReadUint64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(b.buf[b.readPos:])
	b.readPos += 8
	return v, nil
}

// Read fills p from readPos, advancing it. Fails without consuming anything
// when fewer than len(p) bytes remain.
func (b *Buffer) Read(p []byte) error {
	if b.Remaining() < len(p) {
		return ErrShortBuffer
	}
	copy(p, b.buf[b.readPos:])
	b.readPos += len(p)
	return nil
}

// Skip advances readPos by n.
func (b *Buffer) Skip(n int) error {
	if n < 0 || b.Remaining() < n {
		return ErrShortBuffer
	}
	b.readPos += n
	return nil
}
