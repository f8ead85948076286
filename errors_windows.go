//go:build windows

package lsock

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/windows"

	"github.com/go-localsocket/lsock/internal/wpipe"
)

// translateErr maps the Windows backend's raw errors onto the uniform
// sentinel taxonomy. Errors this function doesn't recognize pass through
// unchanged, still inspectable via errors.As for the underlying OS error.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, windows.ERROR_FILE_NOT_FOUND):
		return wrapOSErr(ErrNotFound, err, "no pipe listening at this name")
	case errors.Is(err, windows.ERROR_PIPE_BUSY):
		return wrapOSErr(ErrWouldBlock, err, "all pipe instances are busy")
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		// The first instance of an already-existing pipe name collides
		// with FILE_FLAG_FIRST_PIPE_INSTANCE.
		return wrapOSErr(ErrAddrInUse, err, "a pipe with this name already exists")
	case errors.Is(err, windows.ERROR_BROKEN_PIPE):
		return wrapOSErr(ErrBrokenPipe, err, "peer has closed its read side")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, wpipe.ErrTimeout):
		return wrapOSErr(ErrTimedOut, err, "operation exceeded its deadline")
	case errors.Is(err, wpipe.ErrFileClosed), errors.Is(err, os.ErrClosed):
		return err
	default:
		return err
	}
}
