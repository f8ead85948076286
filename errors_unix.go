//go:build unix

package lsock

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// translateErr maps the POSIX backend's raw errors onto the uniform
// sentinel taxonomy. Errors this function doesn't recognize pass through
// unchanged, still inspectable via errors.As for the underlying OS error.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return wrapOSErr(ErrConnectionRefused, err, "peer rejected the connection")
	case errors.Is(err, unix.ENOENT):
		return wrapOSErr(ErrNotFound, err, "no socket file at this path")
	case errors.Is(err, unix.EADDRINUSE):
		return wrapOSErr(ErrAddrInUse, err, "a socket is already bound at this name")
	case errors.Is(err, unix.EAGAIN):
		return wrapOSErr(ErrWouldBlock, err, "operation would block")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return wrapOSErr(ErrTimedOut, err, "operation exceeded its deadline")
	case errors.Is(err, unix.EPIPE):
		return wrapOSErr(ErrBrokenPipe, err, "peer has closed its read side")
	case errors.Is(err, unix.ENOTSUP), errors.Is(err, unix.EOPNOTSUPP):
		return wrapOSErr(ErrUnsupported, err, "unsupported on this platform")
	case errors.Is(err, os.ErrClosed):
		return err
	default:
		return err
	}
}
