//go:build unix

package subflow

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ReusePortControl is a net.Dialer.Control callback that sets SO_REUSEPORT
// on the dialing socket before it is bound, used by the ndiffports
// port-diversity path-construction mode (§4.2): every port-diversity
// subflow dials out from loc_port 0, and on platforms where a fixed local
// port is reused across multiple outbound connections the kernel must be
// told to allow it up front, before bind/connect happen inside Dial.
func ReusePortControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
