//go:build !unix

package conn

import "net"

// listenConfig uses the platform defaults where SO_REUSEADDR is not available
// through x/sys/unix.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
