//go:build !unix

package daemon

import "syscall"

// reusePortControl is a no-op on platforms without SO_REUSEPORT.
func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
