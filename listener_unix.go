//go:build unix

package lsock

import (
	"context"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/go-localsocket/lsock/internal/udsock"
)

const backlog = 128

// modeBitsSupported reports whether fchmod-after-bind is meaningful on this
// OS. Other POSIX systems derive socket file permissions from umask alone.
func modeBitsSupported() bool {
	switch runtime.GOOS {
	case "linux", "android", "freebsd":
		return true
	default:
		return false
	}
}

// Listener is the POSIX arm of the local-socket dispatch layer: a bound,
// listening Unix-domain socket plus a best-effort reclaim guard over its
// on-disk artifact.
type Listener struct {
	conn     *udsock.Conn
	path     string
	abstract bool
	reclaim  bool
}

// Listen binds and listens at opts.Name, applying try_overwrite and mode
// bits per the options, and arms the reclaim guard unless opts disables it.
func Listen(opts ListenerOptions) (*Listener, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	abstract := opts.Name.form == formNamespaced
	path := opts.Name.raw

	if !abstract && opts.TryOverwrite {
		if err := unlinkStaleSocket(path); err != nil {
			return nil, translateErr(err)
		}
	}

	if opts.modeSet && !abstract && !modeBitsSupported() {
		return nil, wrapErr(ErrUnsupported, "mode bits are not supported on this platform")
	}

	sock, err := udsock.Socket("lsock-listener")
	if err != nil {
		return nil, translateErr(err)
	}
	if err := sock.Bind(path, abstract); err != nil {
		sock.Close()
		return nil, translateErr(err)
	}
	if err := sock.Listen(backlog); err != nil {
		sock.Close()
		return nil, translateErr(err)
	}
	if opts.modeSet && !abstract {
		if err := sock.Chmod(opts.Mode); err != nil {
			sock.Close()
			return nil, translateErr(err)
		}
	}

	return &Listener{
		conn:     sock,
		path:     path,
		abstract: abstract,
		reclaim:  !abstract && opts.ReclaimNameOnDrop,
	}, nil
}

// unlinkStaleSocket removes path if, and only if, it already exists and is
// a socket-type file. Non-socket files are left untouched.
func unlinkStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return wrapErr(ErrAddrInUse, "a non-socket file already exists at this name")
	}
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT { //nolint:errorlint
		return err
	}
	return nil
}

// Accept blocks until a peer connects.
func (l *Listener) Accept() (*Stream, error) {
	return l.AcceptContext(context.Background())
}

// AcceptContext is the readiness-polled/context-cancelable counterpart to
// Accept: the Go idiom for the source's poll_accept suspension point.
func (l *Listener) AcceptContext(ctx context.Context) (*Stream, error) {
	c, err := l.conn.Accept(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return newStream(c), nil
}

// Close closes the listening socket and, if the reclaim guard is armed,
// best-effort unlinks the on-disk path. Unlink failures are never
// reported: a concurrent process may already have replaced the file.
func (l *Listener) Close() error {
	err := l.conn.Close()
	if l.reclaim {
		_ = unix.Unlink(l.path)
	}
	return translateErr(err)
}

func (l *Listener) Addr() string { return l.path }
