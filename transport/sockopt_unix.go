//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control applies the socket buffer sizes before connect so the kernel sizes
// the windows from the start.
func (t *TCP) control(network, address string, raw syscall.RawConn) error {
	if t.options.ReadBufferSize == 0 && t.options.WriteBufferSize == 0 {
		return nil
	}
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		if n := t.options.ReadBufferSize; n > 0 {
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, n); sockErr != nil {
				return
			}
		}
		if n := t.options.WriteBufferSize; n > 0 {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, n)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
