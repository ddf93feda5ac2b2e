// Package transport provides the blocking byte-stream collaborators the TLS
// session engine runs over. A Transport delivers and accepts raw bytes;
// partial reads and writes are normal and the engine loops over them.
// Timeouts are enforced here, not in the engine.
package transport

import (
	"context"
	"net"
	"time"
)

type Reader interface {
	// Read fills p with up to len(p) bytes and returns the count. A zero
	// count with a nil error is not returned; end of stream is io.EOF.
	Read(p []byte) (n int, err error)
}

type Writer interface {
	// Write sends up to len(p) bytes and returns the count actually
	// accepted. Short writes are normal.
	Write(p []byte) (n int, err error)
}

// Transport is an open-once byte stream. Open must succeed before Read and
// Write are used; Close releases the stream and fails in-flight operations.
type Transport interface {
	Reader
	Writer
	Open(ctx context.Context) (err error)
	Close() (err error)
	LocalAddr() (addr net.Addr)
	RemoteAddr() (addr net.Addr)
}

const (
	DefaultDialTimeout  = 15 * time.Second
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)
