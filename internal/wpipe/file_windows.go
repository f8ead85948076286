// Package wpipe implements the Windows named-pipe backend: overlapped I/O
// registered on a shared IO completion port, multi-instance listeners, and
// the flush-on-drop limbo pool.
package wpipe

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	// ErrFileClosed is returned by read/write operations on a closed file.
	ErrFileClosed = errors.New("wpipe: file has already been closed")
	// ErrTimeout is returned when a deadline elapses before an operation
	// completes.
	ErrTimeout = &timeoutError{}
)

type timeoutError struct{}

func (*timeoutError) Error() string   { return "wpipe: i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

var (
	ioInitOnce       sync.Once
	ioCompletionPort windows.Handle
)

// ioOperation represents an outstanding overlapped I/O operation and the
// channel its result is delivered on.
type ioOperation struct {
	o  windows.Overlapped
	ch chan ioResult
}

type ioResult struct {
	bytes uint32
	err   error
}

func initIO() {
	h, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0xffffffff)
	if err != nil {
		panic(err)
	}
	ioCompletionPort = h
	go ioCompletionProcessor(h)
}

// win32File wraps a Windows handle opened with FILE_FLAG_OVERLAPPED,
// registered on a shared IOCP, offering synchronous Read/Write/Flush/Close
// built atop asynchronous completion. One win32File is never used
// concurrently for both a read and a write from two goroutines on the sync
// backend; the local socket dispatch layer enforces that with a
// concurrency detector (see internal/concurrency) before ever reaching
// here.
type win32File struct {
	handle windows.Handle

	wgLock  sync.RWMutex
	wg      sync.WaitGroup
	closing atomic.Bool

	readDeadline  deadlineHandler
	writeDeadline deadlineHandler
}

type deadlineHandler struct {
	setLock     sync.Mutex
	channel     chan struct{}
	channelLock sync.RWMutex
	timer       *time.Timer
	timedout    atomic.Bool
}

// makeWin32File registers h on the shared completion port and readies it
// for overlapped Read/Write.
func makeWin32File(h windows.Handle) (*win32File, error) {
	f := &win32File{handle: h}
	ioInitOnce.Do(initIO)
	if _, err := windows.CreateIoCompletionPort(h, ioCompletionPort, 0, 0xffffffff); err != nil {
		return nil, pkgerrors.Wrap(err, "register handle on completion port")
	}
	if err := windows.SetFileCompletionNotificationModes(h,
		windows.FILE_SKIP_COMPLETION_PORT_ON_SUCCESS); err != nil {
		return nil, pkgerrors.Wrap(err, "set completion notification modes")
	}
	f.readDeadline.channel = make(chan struct{})
	f.writeDeadline.channel = make(chan struct{})
	return f, nil
}

// ioCompletionProcessor drains the shared IOCP and wakes the goroutine
// waiting on each completed operation's channel. One instance runs for the
// lifetime of the process.
func ioCompletionProcessor(h windows.Handle) {
	for {
		var bytes uint32
		var key uintptr
		var ov *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(h, &bytes, &key, &ov, windows.INFINITE)
		if ov == nil {
			panic(err)
		}
		// ioOperation embeds its Overlapped as the first field, so the
		// pointer the kernel hands back is also a valid *ioOperation.
		op := (*ioOperation)(unsafe.Pointer(ov))
		op.ch <- ioResult{bytes, err}
	}
}

// rawHandle returns the underlying OS handle.
func (f *win32File) rawHandle() windows.Handle { return f.handle }

// Close closes the handle once all outstanding I/O has completed.
func (f *win32File) Close() error {
	f.wgLock.Lock()
	if !f.closing.CompareAndSwap(false, true) {
		f.wgLock.Unlock()
		return ErrFileClosed
	}
	f.wgLock.Unlock()
	f.wg.Wait()
	return windows.Close(f.handle)
}

// prepareIO marks the start of an I/O operation, failing if the file is
// being closed concurrently.
func (f *win32File) prepareIO() (*ioOperation, error) {
	f.wgLock.RLock()
	if f.closing.Load() {
		f.wgLock.RUnlock()
		return nil, ErrFileClosed
	}
	f.wg.Add(1)
	f.wgLock.RUnlock()
	return &ioOperation{ch: make(chan ioResult, 1)}, nil
}

// asyncIO waits for an I/O operation initiated with err (the immediate
// return from the Win32 call) to complete, canceling it if cancel fires
// first, and returns the transferred byte count. cancelErr supplies the
// error to report when cancellation preempted the operation; it is never
// called if cancel is nil or never fires. This is the single suspension
// point both the synchronous deadline-based callers (Read, Write) and the
// context-cancelable ones (ReadContext, WriteContext, and
// connectPipeContext for Accept/AcceptContext) funnel through.
func (f *win32File) asyncIO(c *ioOperation, cancel <-chan struct{}, cancelErr func() error, bytes uint32, err error) (int, error) {
	if err != windows.ERROR_IO_PENDING { //nolint:errorlint
		f.wg.Done()
		return int(bytes), err
	}

	if f.closing.Load() {
		windows.CancelIoEx(f.handle, &c.o) //nolint:errcheck
	}

	select {
	case r := <-c.ch:
		f.wg.Done()
		if r.err == windows.ERROR_OPERATION_ABORTED { //nolint:errorlint
			if f.closing.Load() {
				r.err = ErrFileClosed
			}
		} else if r.err != nil && f.closing.Load() {
			r.err = ErrFileClosed
		}
		return int(r.bytes), r.err
	case <-cancel:
		windows.CancelIoEx(f.handle, &c.o) //nolint:errcheck
		r := <-c.ch
		f.wg.Done()
		if r.err == windows.ERROR_OPERATION_ABORTED { //nolint:errorlint
			return int(r.bytes), cancelErr()
		}
		return int(r.bytes), r.err
	}
}

func errTimeout() error { return ErrTimeout }

// deadlineCancel snapshots the channel that fires when d's deadline
// elapses, for use as asyncIO's cancel argument.
func (d *deadlineHandler) deadlineCancel() <-chan struct{} {
	d.channelLock.RLock()
	defer d.channelLock.RUnlock()
	return d.channel
}

// Read implements io.Reader atop ReadFile, honoring the current read
// deadline.
func (f *win32File) Read(b []byte) (int, error) {
	c, err := f.prepareIO()
	if err != nil {
		return 0, err
	}

	if f.readDeadline.timedout.Load() {
		f.wg.Done()
		return 0, ErrTimeout
	}

	var bytes uint32
	err = windows.ReadFile(f.handle, b, &bytes, &c.o)
	n, err := f.asyncIO(c, f.readDeadline.deadlineCancel(), errTimeout, bytes, err)
	runtime.KeepAlive(b)

	if err == nil && n == 0 && len(b) != 0 {
		return 0, io.EOF
	} else if err == windows.ERROR_BROKEN_PIPE { //nolint:errorlint
		return 0, io.EOF
	} else if err == windows.ERROR_HANDLE_EOF { //nolint:errorlint
		return 0, io.EOF
	}
	return n, err
}

// Write implements io.Writer atop WriteFile, honoring the current write
// deadline.
func (f *win32File) Write(b []byte) (int, error) {
	c, err := f.prepareIO()
	if err != nil {
		return 0, err
	}

	if f.writeDeadline.timedout.Load() {
		f.wg.Done()
		return 0, ErrTimeout
	}

	var bytes uint32
	err = windows.WriteFile(f.handle, b, &bytes, &c.o)
	n, err := f.asyncIO(c, f.writeDeadline.deadlineCancel(), errTimeout, bytes, err)
	runtime.KeepAlive(b)
	return n, err
}

// ReadContext is the readiness-polled/context-cancelable counterpart to
// Read: canceling ctx aborts the pending ReadFile via CancelIoEx instead of
// blocking until it completes, the overlapped-I/O translation of a
// suspend-at-poll_read cancellation point.
func (f *win32File) ReadContext(ctx context.Context, b []byte) (int, error) {
	c, err := f.prepareIO()
	if err != nil {
		return 0, err
	}

	if f.readDeadline.timedout.Load() {
		f.wg.Done()
		return 0, ErrTimeout
	}

	var bytes uint32
	err = windows.ReadFile(f.handle, b, &bytes, &c.o)
	n, err := f.asyncIO(c, ctx.Done(), ctx.Err, bytes, err)
	runtime.KeepAlive(b)

	if err == nil && n == 0 && len(b) != 0 {
		return 0, io.EOF
	} else if err == windows.ERROR_BROKEN_PIPE { //nolint:errorlint
		return 0, io.EOF
	} else if err == windows.ERROR_HANDLE_EOF { //nolint:errorlint
		return 0, io.EOF
	}
	return n, err
}

// WriteContext is the readiness-polled/context-cancelable counterpart to
// Write.
func (f *win32File) WriteContext(ctx context.Context, b []byte) (int, error) {
	c, err := f.prepareIO()
	if err != nil {
		return 0, err
	}

	if f.writeDeadline.timedout.Load() {
		f.wg.Done()
		return 0, ErrTimeout
	}

	var bytes uint32
	err = windows.WriteFile(f.handle, b, &bytes, &c.o)
	n, err := f.asyncIO(c, ctx.Done(), ctx.Err, bytes, err)
	runtime.KeepAlive(b)
	return n, err
}

// Flush blocks until the peer has consumed every byte already written to
// this handle.
func (f *win32File) Flush() error {
	return windows.FlushFileBuffers(f.handle)
}

func (f *win32File) SetReadDeadline(t time.Time) error {
	return f.readDeadline.set(t)
}

func (f *win32File) SetWriteDeadline(t time.Time) error {
	return f.writeDeadline.set(t)
}

func (d *deadlineHandler) set(deadline time.Time) error {
	d.setLock.Lock()
	defer d.setLock.Unlock()

	if d.timer != nil {
		if !d.timer.Stop() {
			<-d.channel
		}
		d.timer = nil
	}
	d.timedout.Store(false)

	select {
	case <-d.channel:
		d.channelLock.Lock()
		d.channel = make(chan struct{})
		d.channelLock.Unlock()
	default:
	}

	if deadline.IsZero() {
		return nil
	}

	timeoutIO := func() {
		d.timedout.Store(true)
		close(d.channel)
	}

	now := time.Now()
	duration := deadline.Sub(now)
	if deadline.After(now) {
		d.timer = time.AfterFunc(duration, timeoutIO)
	} else {
		timeoutIO()
	}
	return nil
}
