//go:build windows

package lsock

import (
	"context"

	"github.com/go-localsocket/lsock/internal/wpipe"
)

// Listener is the Windows arm of the local-socket dispatch layer: a
// multi-instance named-pipe server.
type Listener struct {
	inner *wpipe.Listener
}

// Listen creates the first pipe instance at opts.Name and returns a
// Listener. There is no POSIX-style on-disk artifact to reclaim on
// Windows, so ReclaimNameOnDrop and TryOverwrite are accepted but unused.
func Listen(opts ListenerOptions) (*Listener, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	inner, err := wpipe.Listen(opts.Name.String(), wpipe.Config{
		SecurityDescriptor: opts.SecurityDescriptor,
		MessageMode:        opts.MessageMode,
		InstanceLimit:      opts.InstanceLimit,
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return &Listener{inner: inner}, nil
}

// Accept blocks until a peer connects, claiming an idle pipe instance or
// allocating a new one.
func (l *Listener) Accept() (*Stream, error) {
	p, err := l.inner.Accept()
	if err != nil {
		return nil, translateErr(err)
	}
	return newStream(p), nil
}

// AcceptContext is the readiness-polled/context-cancelable counterpart to
// Accept: the Go idiom for the source's poll_accept suspension point.
// Canceling ctx aborts the pending ConnectNamedPipe on the claimed instance
// and releases it back to the pool rather than leaking it.
func (l *Listener) AcceptContext(ctx context.Context) (*Stream, error) {
	p, err := l.inner.AcceptContext(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return newStream(p), nil
}

// Close closes every pipe instance this listener has ever allocated.
func (l *Listener) Close() error {
	return translateErr(l.inner.Close())
}

func (l *Listener) Addr() string { return l.inner.Addr().String() }
