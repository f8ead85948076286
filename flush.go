package lsock

import "sync/atomic"

// flushState is the tri-state NeedsFlush flag from the data model: No
// (clean), Once (dirty since the last flush), Always (shared/cloned; a
// flush is required on every drop because another writer may still exist).
type flushState int32

const (
	flushNo flushState = iota
	flushOnce
	flushAlways
)

// NeedsFlush tracks whether a stream's write side has unflushed data, for
// backends (Windows named pipes) where dropping a dirty handle without
// flushing silently discards buffered bytes. Only the Windows backend
// carries one; the POSIX Stream has no flush state and its Flush is a
// no-op.
type NeedsFlush struct {
	state atomic.Int32
}

// MarkDirty records that a write has occurred. Once stays Once; Always
// stays Always; No becomes Once.
func (n *NeedsFlush) MarkDirty() {
	n.state.CompareAndSwap(int32(flushNo), int32(flushOnce))
}

// MarkShared is called when the stream is split or cloned into another
// writer. The flag is promoted to Always, which MarkDirty and OnFlush never
// demote (only AssumeFlushed clears it): the dropper of any one copy cannot
// know whether the others still need their data flushed.
func (n *NeedsFlush) MarkShared() {
	n.state.Store(int32(flushAlways))
}

// OnFlush reports whether a flush must actually run, and if so transitions
// the state back to No — unless the state is Always, which never elides a
// future flush.
func (n *NeedsFlush) OnFlush() bool {
	switch flushState(n.state.Load()) {
	case flushAlways:
		return true
	case flushOnce:
		n.state.CompareAndSwap(int32(flushOnce), int32(flushNo))
		return true
	default:
		return false
	}
}

// AssumeFlushed forces the state to No without performing any I/O. Used by
// callers who know through an external channel that the peer has already
// consumed everything written (e.g. they just read EOF on the other half).
func (n *NeedsFlush) AssumeFlushed() {
	n.state.Store(int32(flushNo))
}

// NeedsLimbo reports whether a handle being dropped in this state must be
// handed to the limbo pool rather than closed outright: true whenever the
// state is not No.
func (n *NeedsFlush) NeedsLimbo() bool {
	return flushState(n.state.Load()) != flushNo
}
