package lsock

import (
	"time"

	"github.com/pkg/errors"
)

// WaitPolicy controls how Connect behaves when the listener is not (yet)
// accepting, or is momentarily busy servicing another instance. On Windows
// only a busy pipe is waited for; a name with no pipe at all fails at once
// with ErrNotFound whatever the policy.
type WaitPolicy struct {
	kind    waitKind
	timeout time.Duration
}

type waitKind int

const (
	waitFail waitKind = iota
	waitForever
	waitTimeout
)

// Fail returns immediately with an error if the peer is unavailable.
func Fail() WaitPolicy { return WaitPolicy{kind: waitFail} }

// Wait blocks indefinitely until the peer becomes available.
func Wait() WaitPolicy { return WaitPolicy{kind: waitForever} }

// Timeout blocks up to d. A zero duration is equivalent to Fail: this
// resolves a divergence in the two historical implementations this package
// is modeled on (one treated Timeout(0) as an immediate failure, the other
// as an indefinite wait); Fail is the chosen, documented policy.
func Timeout(d time.Duration) WaitPolicy {
	if d <= 0 {
		return Fail()
	}
	return WaitPolicy{kind: waitTimeout, timeout: d}
}

func (w WaitPolicy) isFail() bool    { return w.kind == waitFail }
func (w WaitPolicy) isForever() bool { return w.kind == waitForever }

// deadline returns the absolute deadline for this policy, and whether one
// applies at all (false for Wait).
func (w WaitPolicy) deadline(now time.Time) (time.Time, bool) {
	if w.kind != waitTimeout {
		return time.Time{}, false
	}
	return now.Add(w.timeout), true
}

// ListenerOptions configures Listen. The zero value is not valid; construct
// with NewListenerOptions.
type ListenerOptions struct {
	Name Name

	// Mode holds POSIX permission bits applied to the bound socket file via
	// fchmod (Linux, Android, FreeBSD only). Ignored on Windows and for
	// abstract-namespace names; on other POSIX systems, setting it makes
	// Listen fail with ErrUnsupported.
	Mode uint32
	modeSet bool

	// TryOverwrite unlinks a stale POSIX socket file at Name before binding.
	// Non-socket files at that path are never removed.
	TryOverwrite bool

	// ReclaimNameOnDrop arms a best-effort unlink of the bound POSIX path
	// when the Listener is closed. Defaults to true; set false to leave the
	// filesystem entry in place.
	ReclaimNameOnDrop bool

	// MessageMode selects Windows message-mode pipes, which preserve the
	// boundaries of each write as a discrete read. Ignored on POSIX, where
	// the backend is always byte-stream.
	MessageMode bool

	// InstanceLimit bounds the number of simultaneous Windows named-pipe
	// instances this listener will allocate; zero means unlimited (bounded
	// only by the OS). Ignored on POSIX.
	InstanceLimit uint32

	// SecurityDescriptor is an opaque SDDL string applied to the Windows
	// pipe at creation. Ignored on POSIX.
	SecurityDescriptor string
}

// NewListenerOptions returns options bound to name with reclaim-on-drop
// enabled, matching the common case.
func NewListenerOptions(name Name) ListenerOptions {
	return ListenerOptions{Name: name, ReclaimNameOnDrop: true}
}

// WithMode sets the POSIX permission bits applied after bind.
func (o ListenerOptions) WithMode(mode uint32) ListenerOptions {
	o.Mode = mode
	o.modeSet = true
	return o
}

func (o ListenerOptions) validate() error {
	if o.Name.isZero() {
		return errors.Wrap(wrapErr(ErrInvalidInput, "listener options require a name"), "lsock")
	}
	return nil
}

// ConnectOptions configures Connect: a name plus the policy for waiting on
// an unavailable or busy peer.
type ConnectOptions struct {
	Name Name
	Wait WaitPolicy
}

// NewConnectOptions returns options bound to name with WaitPolicy Fail,
// matching the common non-blocking-dial case.
func NewConnectOptions(name Name) ConnectOptions {
	return ConnectOptions{Name: name, Wait: Fail()}
}

// WithWait overrides the wait policy.
func (o ConnectOptions) WithWait(w WaitPolicy) ConnectOptions {
	o.Wait = w
	return o
}

func (o ConnectOptions) validate() error {
	if o.Name.isZero() {
		return errors.Wrap(wrapErr(ErrInvalidInput, "connect options require a name"), "lsock")
	}
	return nil
}
