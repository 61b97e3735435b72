//go:build !linux

package ipc

import "net"

// verifyPeer has no credential check off Linux; the socket file mode is the
// only gate.
func verifyPeer(conn net.Conn) (bool, error) {
	return true, nil
}
