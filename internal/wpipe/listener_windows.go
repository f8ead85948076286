//go:build windows

package wpipe

import (
	"context"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// Config configures a Listener. It mirrors the options the local-socket
// facade exposes for the Windows backend (ListenerOptions.MessageMode,
// InstanceLimit, SecurityDescriptor), kept here as a plain struct literal
// so the backend has no dependency on the root package's option type.
type Config struct {
	SecurityDescriptor string
	MessageMode        bool
	InstanceLimit      uint32
	InputBufferSize    int32
	OutputBufferSize   int32
}

// Listener is a multi-instance named-pipe server: accepting is never
// serialized behind a single kernel handle the way a naive single-instance
// implementation would be, because the instancer hands out (or grows) a
// distinct accept slot per concurrent Accept call.
type Listener struct {
	path string
	ins  *instancer
}

// Listen creates the first pipe instance at path (e.g. `\\.\pipe\name`) and
// returns a Listener. The pipe must not already exist.
func Listen(path string, c Config) (*Listener, error) {
	var (
		sd  []byte
		err error
	)
	if c.SecurityDescriptor != "" {
		sd, err = sddlToSecurityDescriptor(c.SecurityDescriptor)
		if err != nil {
			return nil, errors.Wrapf(err, "listen %q", path)
		}
	}

	ins := newInstancer(path, sd, c)
	if _, err := ins.grow(true); err != nil {
		return nil, errors.Wrapf(err, "listen %q", path)
	}
	return &Listener{path: path, ins: ins}, nil
}

// Accept claims an idle instance (or allocates a new one) and blocks until
// a client connects to it.
func (l *Listener) Accept() (*Pipe, error) {
	return l.AcceptContext(context.Background())
}

// AcceptContext is the readiness-polled/context-cancelable counterpart to
// Accept: canceling ctx aborts the pending ConnectNamedPipe on the claimed
// instance rather than blocking until a client shows up. The claimed
// instance is released back to the pool so cancellation never leaks it.
func (l *Listener) AcceptContext(ctx context.Context) (*Pipe, error) {
	for {
		in, ok := l.ins.claim()
		if !ok {
			var err error
			in, err = l.ins.grow(false)
			if err != nil {
				return nil, err
			}
		}

		err := connectPipeContext(ctx, in.file)
		if err == windows.ERROR_NO_DATA { //nolint:errorlint
			// Client disconnected before the server finished connecting;
			// this instance is still usable, retry immediately.
			in.release()
			continue
		}
		if err != nil {
			in.release()
			return nil, err
		}

		return newPipe(in.file, l.path, in, l.ins.config.MessageMode), nil
	}
}

// Close closes every instance this listener has ever allocated.
func (l *Listener) Close() error {
	l.ins.closeAll()
	return nil
}

func (l *Listener) Addr() PipeAddr { return PipeAddr(l.path) }

// PipeAddr implements net.Addr for a named-pipe path.
type PipeAddr string

func (PipeAddr) Network() string  { return "pipe" }
func (a PipeAddr) String() string { return string(a) }

func connectPipeContext(ctx context.Context, f *win32File) error {
	c, err := f.prepareIO()
	if err != nil {
		return err
	}

	err = connectNamedPipe(f.handle, &c.o)
	_, err = f.asyncIO(c, ctx.Done(), ctx.Err, 0, err)
	if err != nil && err != windows.ERROR_PIPE_CONNECTED { //nolint:errorlint
		return err
	}
	return nil
}

func makeServerPipeHandle(path string, sd []byte, c *Config, first bool) (windows.Handle, error) {
	var sa windows.SecurityAttributes
	sa.Length = uint32(unsafe.Sizeof(sa))
	if sd != nil {
		sa.SecurityDescriptor = uintptr(unsafe.Pointer(&sd[0]))
	}

	typ := uint32(windows.FILE_PIPE_REJECT_REMOTE_CLIENTS) //nolint:nolintlint
	mode := uint32(0)                                      // PIPE_TYPE_BYTE
	if c.MessageMode {
		mode = 0x4 // PIPE_TYPE_MESSAGE
	}

	maxInstances := uint32(0xff)
	if c.InstanceLimit != 0 {
		maxInstances = c.InstanceLimit
	}

	outSize := uint32(c.OutputBufferSize)
	inSize := uint32(c.InputBufferSize)
	if outSize == 0 {
		outSize = 4096
	}
	if inSize == 0 {
		inSize = 4096
	}

	const (
		pipeAccessDuplex  = 0x3
		fileFlagOverlapped = 0x40000000
		firstInstanceFlag  = 0x80000
	)

	openMode := uint32(pipeAccessDuplex | fileFlagOverlapped)
	if first {
		openMode |= firstInstanceFlag
	}

	h, err := createNamedPipe(path, openMode, typ|mode, maxInstances, outSize, inSize, 0, &sa)
	if err != nil {
		return 0, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return h, nil
}
