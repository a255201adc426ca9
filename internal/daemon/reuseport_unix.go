//go:build unix

package daemon

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl is a net.ListenConfig.Control callback that sets
// SO_REUSEPORT on the listening socket before bind, so the NAT-T and
// non-NAT-T listeners (and, on a multi-process deployment, more than one
// daemon instance) can share a port without racing each other for it.
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
