//go:build windows

package subflow

import "syscall"

// ReusePortControl is the Windows counterpart of the unix SO_REUSEPORT
// dialer control: Windows has no direct SO_REUSEPORT equivalent (SO_REUSEADDR
// has different, looser semantics there), so ndiffports port-diversity mode
// falls back to relying on the kernel's ordinary ephemeral-port allocation
// for path diversity on this platform rather than failing the dial.
func ReusePortControl(network, address string, c syscall.RawConn) error {
	return nil
}
