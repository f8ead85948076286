//go:build windows

package lsock

import (
	"context"
	"time"

	"github.com/go-localsocket/lsock/internal/concurrency"
	"github.com/go-localsocket/lsock/internal/wpipe"
)

// streamCore is the shared state behind a Stream and any halves split from
// it. It starts referenced by exactly one Stream; Split hands out two
// halves that both point at it, and MarkShared promotes the flush state to
// Always because neither half's dropper can know whether the other is
// still live.
type streamCore struct {
	pipe  *wpipe.Pipe
	flush NeedsFlush
}

// Stream is the Windows arm of the local-socket dispatch layer: a duplex
// named-pipe connection. The facade detector guards whole-Stream read/write
// reentrancy for behavior consistent with the POSIX arm; the pipe's own
// detector (internal to wpipe.Pipe) is what actually prevents the deadlock
// a concurrent read+write on the underlying handle would cause, and still
// applies after Split since both halves share the same *wpipe.Pipe.
type Stream struct {
	core     *streamCore
	detector *concurrency.Detector
}

func newStream(p *wpipe.Pipe) *Stream {
	return &Stream{
		core:     &streamCore{pipe: p},
		detector: concurrency.New("local socket", false),
	}
}

// Connect dials the named pipe addressed by opts.Name, honoring opts.Wait.
func Connect(opts ConnectOptions) (*Stream, error) {
	return ConnectContext(context.Background(), opts)
}

// ConnectContext is the readiness-polled/context-cancelable counterpart to
// Connect: ctx bounds the dial in addition to (not instead of) opts.Wait,
// so a caller driving an event loop can cancel a pending dial that opts.Wait
// alone would otherwise keep retrying.
func ConnectContext(ctx context.Context, opts ConnectOptions) (*Stream, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	retry := !opts.Wait.isFail()
	var cancel context.CancelFunc
	if d, ok := opts.Wait.deadline(time.Now()); ok {
		ctx, cancel = context.WithDeadline(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	p, err := wpipe.Dial(ctx, opts.Name.String(), retry)
	if err != nil {
		return nil, translateErr(err)
	}
	return newStream(p), nil
}

func (s *Stream) Read(b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.pipe.Read(b)
	return n, translateErr(err)
}

func (s *Stream) Write(b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.pipe.Write(b)
	if err == nil {
		s.core.flush.MarkDirty()
	}
	return n, translateErr(err)
}

// ReadContext is the readiness-polled/context-cancelable counterpart to
// Read: the Go idiom for the source's poll_read suspension point (see
// spec's coroutine-control-flow design note). Canceling ctx aborts the
// pending overlapped read instead of blocking the calling goroutine.
func (s *Stream) ReadContext(ctx context.Context, b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.pipe.ReadContext(ctx, b)
	return n, translateErr(err)
}

// WriteContext is the readiness-polled/context-cancelable counterpart to
// Write.
func (s *Stream) WriteContext(ctx context.Context, b []byte) (int, error) {
	g := s.detector.Lock()
	defer g.Release()
	n, err := s.core.pipe.WriteContext(ctx, b)
	if err == nil {
		s.core.flush.MarkDirty()
	}
	return n, translateErr(err)
}

// Flush blocks until the peer has consumed every byte already written,
// unless the flush state says nothing is outstanding (No), in which case
// it is a no-op.
func (s *Stream) Flush() error {
	if !s.core.flush.OnFlush() {
		return nil
	}
	return translateErr(s.core.pipe.Flush())
}

// MarkDirty forces the next Close to participate in limbo even if no
// write has happened through this Stream, for callers who wrote via a
// lower-level handle obtained from the same pipe.
func (s *Stream) MarkDirty() { s.core.flush.MarkDirty() }

// AssumeFlushed forces the next Close to skip limbo even if writes are
// outstanding, for callers who know through an external channel (e.g. they
// just observed the peer read to EOF) that nothing remains buffered.
func (s *Stream) AssumeFlushed() { s.core.flush.AssumeFlushed() }

// Close closes the stream. If the flush state shows unflushed writes, the
// handle is handed to the limbo pool instead of closed synchronously, so a
// caller's drop never blocks on a peer that may never read.
func (s *Stream) Close() error {
	if s.core.flush.NeedsLimbo() {
		wpipe.Enqueue(s.core.pipe)
		return nil
	}
	return translateErr(s.core.pipe.Close())
}

// CloseWrite half-closes the write side. Only supported when the listener
// was created with MessageMode, matching the Windows backend's inherent
// limitation on byte-mode pipes (see wpipe.Pipe.CloseWrite).
func (s *Stream) CloseWrite() error {
	return translateErr(s.core.pipe.CloseWrite())
}

// PeerPID returns the PID of the process on the other end of the pipe.
func (s *Stream) PeerPID() (uint32, error) {
	pid, err := s.core.pipe.PeerPID()
	return pid, translateErr(err)
}

func (s *Stream) SetReadDeadline(t time.Time) error  { return s.core.pipe.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.core.pipe.SetWriteDeadline(t) }
func (s *Stream) SetDeadline(t time.Time) error      { return s.core.pipe.SetDeadline(t) }

// RecvHalf is the read-only half of a split Stream.
type RecvHalf struct{ core *streamCore }

// SendHalf is the write-only half of a split Stream.
type SendHalf struct{ core *streamCore }

// Split consumes the stream and returns independent receive/send halves
// sharing the same underlying pipe. Issuing a read on one half concurrently
// with a write on the other still panics (see Stream's doc comment), for
// the blocking Read/Write and the context-cancelable ReadContext/
// WriteContext alike: both go through the pipe's own detector.
func (s *Stream) Split() (*RecvHalf, *SendHalf) {
	s.core.flush.MarkShared()
	return &RecvHalf{core: s.core}, &SendHalf{core: s.core}
}

func (r *RecvHalf) Read(b []byte) (int, error) { return r.core.pipe.Read(b) }

// ReadContext is RecvHalf's readiness-polled/context-cancelable read.
func (r *RecvHalf) ReadContext(ctx context.Context, b []byte) (int, error) {
	n, err := r.core.pipe.ReadContext(ctx, b)
	return n, translateErr(err)
}

func (r *RecvHalf) Close() error {
	if r.core.flush.NeedsLimbo() {
		wpipe.Enqueue(r.core.pipe)
		return nil
	}
	return translateErr(r.core.pipe.Close())
}

func (w *SendHalf) Write(b []byte) (int, error) {
	n, err := w.core.pipe.Write(b)
	if err == nil {
		w.core.flush.MarkDirty()
	}
	return n, translateErr(err)
}

// WriteContext is SendHalf's readiness-polled/context-cancelable write.
func (w *SendHalf) WriteContext(ctx context.Context, b []byte) (int, error) {
	n, err := w.core.pipe.WriteContext(ctx, b)
	if err == nil {
		w.core.flush.MarkDirty()
	}
	return n, translateErr(err)
}
func (w *SendHalf) Flush() error {
	if !w.core.flush.OnFlush() {
		return nil
	}
	return translateErr(w.core.pipe.Flush())
}
func (w *SendHalf) Close() error {
	if w.core.flush.NeedsLimbo() {
		wpipe.Enqueue(w.core.pipe)
		return nil
	}
	return translateErr(w.core.pipe.Close())
}

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
