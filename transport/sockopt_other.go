//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package transport

import "syscall"

func (t *TCP) control(network, address string, raw syscall.RawConn) error {
	return nil
}
