//go:build linux

package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// PeerCredentials identifies the process on the other end of a Unix socket.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// GetPeerCredentials retrieves the SO_PEERCRED credentials of the peer.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("not a unix connection")
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("get raw conn: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	err = rawConn.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("getsockopt: %w", credErr)
	}

	return &PeerCredentials{
		PID: int(cred.Pid),
		UID: int(cred.Uid),
		GID: int(cred.Gid),
	}, nil
}

// verifyPeer accepts connections from the daemon's own user and from root.
func verifyPeer(conn net.Conn) (bool, error) {
	cred, err := GetPeerCredentials(conn)
	if err != nil {
		return false, err
	}
	return cred.UID == os.Getuid() || cred.UID == 0, nil
}
