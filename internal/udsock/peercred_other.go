//go:build unix && !linux

package udsock

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// peerPID is unimplemented outside Linux: BSD-family peer credential
// retrieval (LOCAL_PEERCRED, getpeereid) uses a different sockopt shape per
// OS and no component in this tree currently needs it there. The dispatch
// layer surfaces this as ErrUnsupported.
func peerPID(raw syscall.RawConn) (int32, error) {
	return 0, unix.ENOTSUP
}
