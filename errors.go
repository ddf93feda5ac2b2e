package tlsclient

import (
	stderrors "errors"
	"strconv"

	"github.com/brickingsoft/errors"
)

// Code identifies the layer and operation that produced a failure. The TLS
// session engine and the transport use disjoint ranges so a diagnostic trail
// collected with Codes reads innermost cause first.
type Code uint32

const (
	CodeNone Code = 0

	// Transport layer.
	CodeSocketResolve Code = 3
	CodeSocketConnect Code = 5
	CodeSocketRecv    Code = 8
	CodeSocketSend    Code = 9

	// TLS session engine.
	CodeTlsOpenFailedSocket    Code = 16
	CodeTlsOpenFailedHandshake Code = 17
	CodeTlsReadFailedNotReady  Code = 18
	CodeTlsReadFailedRecv      Code = 19
	CodeTlsReadFailedDecrypt   Code = 20
	CodeTlsWriteFailedNotReady Code = 21
	CodeTlsWriteFailedSend     Code = 22
)

func (c Code) String() string {
	switch c {
	case CodeSocketResolve:
		return "socket: resolve failed"
	case CodeSocketConnect:
		return "socket: connect failed"
	case CodeSocketRecv:
		return "socket: receive failed"
	case CodeSocketSend:
		return "socket: send failed"
	case CodeTlsOpenFailedSocket:
		return "tls: open failed: socket"
	case CodeTlsOpenFailedHandshake:
		return "tls: open failed: handshake"
	case CodeTlsReadFailedNotReady:
		return "tls: read failed: not ready"
	case CodeTlsReadFailedRecv:
		return "tls: read failed: receive"
	case CodeTlsReadFailedDecrypt:
		return "tls: read failed: decrypt"
	case CodeTlsWriteFailedNotReady:
		return "tls: write failed: not ready"
	case CodeTlsWriteFailedSend:
		return "tls: write failed: send"
	default:
		return "code(" + strconv.FormatUint(uint64(c), 10) + ")"
	}
}

var (
	ErrClosed   = errors.Define("tlsclient: closed")
	ErrNotReady = errors.Define("tlsclient: session not established")
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "tlsclient"
)

// codedError attaches a Code to a failure while keeping the cause reachable
// through the unwrap chain.
type codedError struct {
	code  Code
	cause error
}

func (e *codedError) Error() string {
	if e.cause == nil {
		return e.code.String()
	}
	return e.code.String() + ": " + e.cause.Error()
}

func (e *codedError) Unwrap() error { return e.cause }

// withCode wraps err with code. The wrapper implements the stdlib unwrap
// contract directly; routing it through errors.WithWrap would replace the
// foreign cause with a message-only copy and cut the trail.
func withCode(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, cause: err}
}

// Codes collects every Code on err's unwrap chain, innermost first. At most
// 16 codes are reported.
func Codes(err error) []Code {
	var trail []Code
	for err != nil && len(trail) < 16 {
		if ce, ok := err.(*codedError); ok {
			trail = append(trail, ce.code)
		}
		err = stderrors.Unwrap(err)
	}
	for i, j := 0, len(trail)-1; i < j; i, j = i+1, j-1 {
		trail[i], trail[j] = trail[j], trail[i]
	}
	return trail
}

// CodeOf reports the innermost Code on err's chain, or CodeNone.
func CodeOf(err error) Code {
	if trail := Codes(err); len(trail) > 0 {
		return trail[0]
	}
	return CodeNone
}

func IsClosed(err error) bool {
	return stderrors.Is(err, ErrClosed)
}

func IsNotReady(err error) bool {
	return stderrors.Is(err, ErrNotReady)
}
