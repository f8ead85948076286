//go:build linux

package udsock

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func peerPID(raw syscall.RawConn) (int32, error) {
	var (
		cred    *unix.Ucred
		credErr error
	)
	ctlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	if credErr != nil {
		return 0, os.NewSyscallError("getsockopt", credErr)
	}
	return cred.Pid, nil
}
