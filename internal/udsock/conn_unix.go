//go:build unix

// Package udsock is the POSIX arm of the local-socket backend: a thin layer
// over github.com/mdlayher/socket's *socket.Conn bound to AF_UNIX, giving
// both a blocking and a context-cancelable execution surface from the same
// underlying file descriptor.
package udsock

import (
	"context"
	"time"

	"github.com/mdlayher/socket"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Conn wraps a connected or listening AF_UNIX socket.
type Conn struct {
	sock *socket.Conn
	addr string
}

// socketAddr builds the unix.Sockaddr for name. golang.org/x/sys/unix (like
// the standard library's net package) recognizes a SockaddrUnix.Name
// beginning with "@" as a request for the Linux abstract namespace, and
// substitutes the NUL byte the kernel actually requires.
func socketAddr(path string, abstract bool) unix.Sockaddr {
	name := path
	if abstract {
		name = "@" + path
	}
	return &unix.SockaddrUnix{Name: name}
}

// Socket creates a new, unbound, non-blocking AF_UNIX stream socket.
func Socket(name string) (*Conn, error) {
	c, err := socket.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0, name, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{sock: c}, nil
}

// Bind binds the socket to path (or the abstract-namespace name if abstract
// is set).
func (c *Conn) Bind(path string, abstract bool) error {
	c.addr = path
	if err := c.sock.Bind(socketAddr(path, abstract)); err != nil {
		return errors.Wrapf(err, "bind %q", path)
	}
	return nil
}

// Listen marks the bound socket as a listener with the given backlog.
func (c *Conn) Listen(backlog int) error {
	return c.sock.Listen(backlog)
}

// Accept blocks (obeying ctx cancelation) until a peer connects.
func (c *Conn) Accept(ctx context.Context) (*Conn, error) {
	ac, _, err := c.sock.Accept(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &Conn{sock: ac}, nil
}

// Connect connects the socket to path (or the abstract-namespace name),
// obeying ctx cancelation and any deadline it carries.
func (c *Conn) Connect(ctx context.Context, path string, abstract bool) error {
	c.addr = path
	if _, err := c.sock.Connect(ctx, socketAddr(path, abstract)); err != nil {
		return errors.Wrapf(err, "connect %q", path)
	}
	return nil
}

// Read performs a plain blocking read, honoring any deadline set via
// SetReadDeadline.
func (c *Conn) Read(b []byte) (int, error) { return c.sock.Read(b) }

// Write performs a plain blocking write, honoring any deadline set via
// SetWriteDeadline.
func (c *Conn) Write(b []byte) (int, error) { return c.sock.Write(b) }

// ReadContext reads with cancelation support, for the readiness-polled
// execution surface (Split halves used concurrently from two goroutines).
func (c *Conn) ReadContext(ctx context.Context, b []byte) (int, error) {
	return c.sock.ReadContext(ctx, b)
}

// WriteContext writes with cancelation support.
func (c *Conn) WriteContext(ctx context.Context, b []byte) (int, error) {
	return c.sock.WriteContext(ctx, b)
}

func (c *Conn) CloseRead() error  { return c.sock.CloseRead() }
func (c *Conn) CloseWrite() error { return c.sock.CloseWrite() }
func (c *Conn) Close() error      { return c.sock.Close() }

func (c *Conn) SetDeadline(t time.Time) error      { return c.sock.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.sock.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.sock.SetWriteDeadline(t) }

// Chmod applies mode to the bound socket file via fchmod. Only meaningful
// after Bind, and only on Linux/Android/FreeBSD per the mode-bit gate the
// dispatch layer enforces before calling this.
func (c *Conn) Chmod(mode uint32) error {
	raw, err := c.sock.SyscallConn()
	if err != nil {
		return errors.Wrapf(err, "chmod %q", c.addr)
	}
	var chmodErr error
	err = raw.Control(func(fd uintptr) {
		chmodErr = unix.Fchmod(int(fd), mode)
	})
	if err != nil {
		return errors.Wrapf(err, "chmod %q", c.addr)
	}
	if chmodErr != nil {
		return errors.Wrapf(chmodErr, "chmod %q", c.addr)
	}
	return nil
}

// PeerPID returns the PID of the process on the other end of the socket.
// The actual getsockopt call is platform-specific; see peercred_linux.go and
// peercred_other.go.
func (c *Conn) PeerPID() (uint32, error) {
	raw, err := c.sock.SyscallConn()
	if err != nil {
		return 0, errors.Wrap(err, "peer pid")
	}
	pid, err := peerPID(raw)
	if err != nil {
		return 0, errors.Wrap(err, "peer pid")
	}
	return uint32(pid), nil
}

func (c *Conn) Addr() string { return c.addr }
