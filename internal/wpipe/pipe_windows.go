//go:build windows

package wpipe

import (
	"context"
	"io"
	"os"
	"time"

	"golang.org/x/sys/windows"

	"github.com/go-localsocket/lsock/internal/concurrency"
	"github.com/go-localsocket/lsock/internal/fs"
)

var (
	errPipeWriteClosed      = &os.PathError{Op: "write", Path: "pipe", Err: os.ErrClosed}
	errHalfCloseUnsupported = &os.PathError{Op: "closewrite", Path: "pipe", Err: os.ErrInvalid}
)

// Pipe is one end of a Windows named-pipe duplex connection: either a
// client arm opened with CreateFile, or one server-side instance handed
// out by a Listener. Read and Write on the same Pipe are guarded against
// concurrent invocation by a concurrency detector: named pipes in
// overlapped+duplex mode serialize both directions on the single kernel
// handle, and issuing both at once from separate goroutines deadlocks
// rather than erroring.
type Pipe struct {
	*win32File
	path        string
	isServer    bool
	messageMode bool
	writeClosed bool
	readEOF     bool

	inst *instance // non-nil for server-side instances; released on Close

	detector *concurrency.Detector
}

func newPipe(f *win32File, path string, inst *instance, messageMode bool) *Pipe {
	return &Pipe{
		win32File:   f,
		path:        path,
		isServer:    inst != nil,
		messageMode: messageMode,
		inst:        inst,
		detector:    concurrency.New("named pipe", true),
	}
}

// PeerPID returns the PID of the process on the other end of the pipe: the
// client's PID if this is a server-side instance, the server's PID
// otherwise.
func (p *Pipe) PeerPID() (uint32, error) {
	var pid uint32
	var err error
	if p.isServer {
		err = getNamedPipeClientProcessId(p.handle, &pid)
	} else {
		err = getNamedPipeServerProcessId(p.handle, &pid)
	}
	return pid, err
}

func (p *Pipe) LocalAddr() PipeAddr  { return PipeAddr(p.path) }
func (p *Pipe) RemoteAddr() PipeAddr { return PipeAddr(p.path) }
func (p *Pipe) IsServer() bool       { return p.isServer }

func (p *Pipe) SetDeadline(t time.Time) error {
	if err := p.SetReadDeadline(t); err != nil {
		return err
	}
	return p.SetWriteDeadline(t)
}

// Read reads from the pipe. On a message-mode pipe, a zero-byte message
// (used by CloseWrite to signal EOF explicitly) and any subsequent read
// both return io.EOF.
func (p *Pipe) Read(b []byte) (int, error) {
	g := p.detector.Lock()
	defer g.Release()

	if p.messageMode && p.readEOF {
		return 0, io.EOF
	}
	n, err := p.win32File.Read(b)
	if p.messageMode {
		if err == io.EOF { //nolint:errorlint
			p.readEOF = true
		} else if err == windows.ERROR_MORE_DATA { //nolint:errorlint
			err = nil
		}
	}
	return n, err
}

// Write writes to the pipe. A zero-length write is a no-op (it is reserved
// for CloseWrite's message-mode EOF signal).
func (p *Pipe) Write(b []byte) (int, error) {
	if p.writeClosed {
		return 0, errPipeWriteClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	g := p.detector.Lock()
	defer g.Release()
	return p.win32File.Write(b)
}

// ReadContext is the readiness-polled/context-cancelable counterpart to
// Read, for callers driving the pipe from an external event loop instead of
// blocking a goroutine.
func (p *Pipe) ReadContext(ctx context.Context, b []byte) (int, error) {
	g := p.detector.Lock()
	defer g.Release()

	if p.messageMode && p.readEOF {
		return 0, io.EOF
	}
	n, err := p.win32File.ReadContext(ctx, b)
	if p.messageMode {
		if err == io.EOF { //nolint:errorlint
			p.readEOF = true
		} else if err == windows.ERROR_MORE_DATA { //nolint:errorlint
			err = nil
		}
	}
	return n, err
}

// WriteContext is the readiness-polled/context-cancelable counterpart to
// Write.
func (p *Pipe) WriteContext(ctx context.Context, b []byte) (int, error) {
	if p.writeClosed {
		return 0, errPipeWriteClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	g := p.detector.Lock()
	defer g.Release()
	return p.win32File.WriteContext(ctx, b)
}

// CloseWrite half-closes the write side of a message-mode pipe by sending
// a zero-byte message, which the peer's Read observes as io.EOF. Only
// supported in message mode: byte-mode pipes have no way to signal a
// zero-length write distinctly from "nothing to write".
func (p *Pipe) CloseWrite() error {
	if !p.messageMode {
		return errHalfCloseUnsupported
	}
	if p.writeClosed {
		return errPipeWriteClosed
	}
	if err := p.win32File.Flush(); err != nil {
		return err
	}
	if _, err := p.win32File.Write(nil); err != nil {
		return err
	}
	p.writeClosed = true
	return nil
}

// Disconnect tears down a server-side instance's connection to its client,
// making the instance reusable by a future Accept once released back to
// the instancer. Called by the limbo pool after flushing a dirty server
// handle, per the spec's server-arm teardown rule.
func (p *Pipe) Disconnect() error {
	return disconnectNamedPipe(p.handle)
}

// Close closes the pipe. For a server-side instance it disconnects the
// client and releases the instance back to the instancer's idle pool rather
// than ending its kernel-level lifetime, since instances are reused across
// clients; the handle itself is closed by Listener.Close. A client-side
// pipe's handle is closed here.
func (p *Pipe) Close() error {
	if p.inst != nil {
		err := p.Disconnect()
		p.inst.release()
		return err
	}
	return p.win32File.Close()
}

// dialPipe opens a client connection to path. When retry is true,
// ERROR_PIPE_BUSY is retried until ctx is done; when false, a single busy
// response is returned to the caller immediately.
func dialPipe(ctx context.Context, path string, access fs.AccessMask, retry bool) (*Pipe, error) {
	h, err := tryDialPipe(ctx, path, access, retry)
	if err != nil {
		return nil, err
	}

	var flags uint32
	if err := getNamedPipeInfo(h, &flags, nil, nil, nil); err != nil {
		windows.Close(h)
		return nil, err
	}

	f, err := makeWin32File(h)
	if err != nil {
		windows.Close(h)
		return nil, err
	}

	return newPipe(f, path, nil, flags&windows.PIPE_TYPE_MESSAGE != 0), nil
}

func tryDialPipe(ctx context.Context, path string, access fs.AccessMask, retry bool) (windows.Handle, error) {
	for {
		h, err := fs.CreateFile(path,
			access,
			0,
			nil,
			fs.OPEN_EXISTING,
			fs.FILE_FLAG_OVERLAPPED|fs.SECURITY_SQOS_PRESENT|fs.SECURITY_ANONYMOUS,
			0,
		)
		if err == nil {
			return h, nil
		}
		if err != windows.ERROR_PIPE_BUSY { //nolint:errorlint
			return h, &os.PathError{Op: "open", Path: path, Err: err}
		}
		if !retry {
			return h, &os.PathError{Op: "open", Path: path, Err: err}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Dial opens a client connection to path (e.g. `\\.\pipe\name`). When
// retry is true, ERROR_PIPE_BUSY is retried until ctx is canceled or its
// deadline elapses; when false, busy is reported to the caller on the
// first attempt.
func Dial(ctx context.Context, path string, retry bool) (*Pipe, error) {
	return dialPipe(ctx, path, fs.GENERIC_READ|fs.GENERIC_WRITE, retry)
}
