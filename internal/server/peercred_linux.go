//go:build linux

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/hello-hal/internal/driver"
)

// peerCaller reads the connecting process's credentials with SO_PEERCRED.
func peerCaller(conn net.Conn) (driver.Caller, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return driver.Caller{}, fmt.Errorf("peer credentials: not a unix connection")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return driver.Caller{}, fmt.Errorf("peer credentials: %w", err)
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return driver.Caller{}, fmt.Errorf("peer credentials: %w", err)
	}
	if credErr != nil {
		return driver.Caller{}, fmt.Errorf("peer credentials: %w", credErr)
	}

	return driver.Caller{UID: cred.Uid, GID: cred.Gid, PID: cred.Pid}, nil
}
