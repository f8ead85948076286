//go:build unix

package lsock

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/go-localsocket/lsock/internal/concurrency"
	"github.com/go-localsocket/lsock/internal/udsock"
)

// streamCore is the shared state behind a Stream and any halves split from
// it, mirroring the Windows arm's core for symmetry even though POSIX has
// no limbo pool to drive off NeedsFlush: Flush is a synchronous, immediate
// no-op here, since a Unix-domain socket's kernel send buffer is drained on
// close without the peer needing to actively read first.
type streamCore struct {
	conn *udsock.Conn
}

// Stream is the POSIX arm of the local-socket dispatch layer: a connected
// Unix-domain stream socket. The facade detector exists purely to keep
// whole-Stream reentrancy behavior consistent with the Windows arm; POSIX
// sockets themselves tolerate concurrent read/write on the same descriptor
// without the handle-level deadlock named pipes have.
type Stream struct {
	core     *streamCore
	detector *concurrency.Detector
}

func newStream(c *udsock.Conn) *Stream {
	return &Stream{
		core:     &streamCore{conn: c},
		detector: concurrency.New("local socket", false),
	}
}

// retryable reports whether err is the kind of connect failure that means
// "no one is listening yet" rather than a permanent condition.
func retryable(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ENOENT)
}

// Connect dials the socket addressed by opts.Name, honoring opts.Wait by
// retrying a refused or not-yet-bound connection until the deadline (or
// cancelation) from opts.Wait elapses.
func Connect(opts ConnectOptions) (*Stream, error) {
	return ConnectContext(context.Background(), opts)
}

// ConnectContext is the readiness-polled/context-cancelable counterpart to
// Connect: ctx bounds the dial in addition to (not instead of) opts.Wait, so
// a caller driving an event loop can cancel a retrying dial that opts.Wait
// alone would otherwise keep polling.
func ConnectContext(ctx context.Context, opts ConnectOptions) (*Stream, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	abstract := opts.Name.form == formNamespaced
	path := opts.Name.raw
	retry := !opts.Wait.isFail()

	var cancel context.CancelFunc
	if d, ok := opts.Wait.deadline(time.Now()); ok {
		ctx, cancel = context.WithDeadline(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	for {
		sock, err := udsock.Socket("lsock-stream")
		if err != nil {
			return nil, translateErr(err)
		}
		err = sock.Connect(ctx, path, abstract)
		if err == nil {
			return newStream(sock), nil
		}
		sock.Close()

		if !retry || !retryable(err) {
			return nil, translateErr(err)
		}
		select {
		case <-ctx.Done():
			return nil, translateErr(ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *Stream) Read(b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.conn.Read(b)
	return n, translateErr(err)
}

func (s *Stream) Write(b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.conn.Write(b)
	return n, translateErr(err)
}

// ReadContext is the readiness-polled/context-cancelable counterpart to
// Read: the Go idiom for the source's poll_read suspension point. Canceling
// ctx aborts a pending read instead of blocking the calling goroutine.
func (s *Stream) ReadContext(ctx context.Context, b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.conn.ReadContext(ctx, b)
	return n, translateErr(err)
}

// WriteContext is the readiness-polled/context-cancelable counterpart to
// Write.
func (s *Stream) WriteContext(ctx context.Context, b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.conn.WriteContext(ctx, b)
	return n, translateErr(err)
}

// Flush is a no-op on the POSIX backend: see streamCore's doc comment.
func (s *Stream) Flush() error { return nil }

// MarkDirty and AssumeFlushed exist for cross-platform API parity; the
// POSIX backend has no limbo pool for them to arm or disarm.
func (s *Stream) MarkDirty()     {}
func (s *Stream) AssumeFlushed() {}

func (s *Stream) Close() error {
	return translateErr(s.core.conn.Close())
}

// CloseWrite half-closes the write side via shutdown(SHUT_WR); the peer's
// Read observes this as io.EOF, matching the Windows arm's message-mode
// zero-byte-write signal.
func (s *Stream) CloseWrite() error {
	return translateErr(s.core.conn.CloseWrite())
}

// PeerPID returns the PID of the process on the other end of the socket,
// reported by the kernel via SO_PEERCRED at connection time. Returns
// ErrUnsupported on POSIX systems other than Linux.
func (s *Stream) PeerPID() (uint32, error) {
	pid, err := s.core.conn.PeerPID()
	return pid, translateErr(err)
}

func (s *Stream) SetReadDeadline(t time.Time) error  { return s.core.conn.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.core.conn.SetWriteDeadline(t) }
func (s *Stream) SetDeadline(t time.Time) error      { return s.core.conn.SetDeadline(t) }

// RecvHalf is the read-only half of a split Stream.
type RecvHalf struct{ core *streamCore }

// SendHalf is the write-only half of a split Stream.
type SendHalf struct{ core *streamCore }

// Split consumes the stream and returns independent receive/send halves
// sharing the same underlying socket. Unlike the Windows sync backend,
// concurrent reads and writes across the two halves are genuinely safe
// here: a POSIX socket descriptor has no single-duplex-handle constraint.
func (s *Stream) Split() (*RecvHalf, *SendHalf) {
	return &RecvHalf{core: s.core}, &SendHalf{core: s.core}
}

func (r *RecvHalf) Read(b []byte) (int, error) {
	n, err := r.core.conn.Read(b)
	return n, translateErr(err)
}

// ReadContext is RecvHalf's readiness-polled/context-cancelable read; on
// POSIX, concurrent use from a SendHalf's WriteContext on the other half is
// genuinely safe (see Stream.Split's doc comment).
func (r *RecvHalf) ReadContext(ctx context.Context, b []byte) (int, error) {
	n, err := r.core.conn.ReadContext(ctx, b)
	return n, translateErr(err)
}

func (r *RecvHalf) Close() error { return translateErr(r.core.conn.Close()) }

func (w *SendHalf) Write(b []byte) (int, error) {
	n, err := w.core.conn.Write(b)
	return n, translateErr(err)
}

// WriteContext is SendHalf's readiness-polled/context-cancelable write.
func (w *SendHalf) WriteContext(ctx context.Context, b []byte) (int, error) {
	n, err := w.core.conn.WriteContext(ctx, b)
	return n, translateErr(err)
}

func (w *SendHalf) Flush() error { return nil }
func (w *SendHalf) Close() error { return translateErr(w.core.conn.Close()) }

// ReuniteError is returned by Reunite when the two halves did not
// originate from the same Stream. Both halves are returned intact so the
// caller loses no state.
type ReuniteError struct {
	Recv *RecvHalf
	Send *SendHalf
}

func (e *ReuniteError) Error() string {
	return "lsock: reunite: halves did not originate from the same stream"
}

// Reunite recombines a previously split RecvHalf/SendHalf pair. It
// succeeds only if both halves share the same underlying core (pointer
// equality), in which case the result is the original stream in every
// observable sense.
func Reunite(r *RecvHalf, w *SendHalf) (*Stream, error) {
	if r.core != w.core {
		return nil, &ReuniteError{Recv: r, Send: w}
	}
	return &Stream{core: r.core, detector: concurrency.New("local socket", false)}, nil
}
