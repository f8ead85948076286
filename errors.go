package lsock

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors surfaced uniformly by both backends. Callers should match
// these with errors.Is; where an OS error caused the failure, it stays
// reachable through errors.Is and errors.As as well.
var (
	// ErrNotFound indicates that no server is listening at the given name.
	ErrNotFound = errors.New("lsock: no server listening at this name")

	// ErrConnectionRefused indicates the listening peer actively rejected the
	// connection (e.g. a full accept backlog on POSIX).
	ErrConnectionRefused = errors.New("lsock: connection refused")

	// ErrAddrInUse indicates a bind conflict: something is already bound to
	// this name.
	ErrAddrInUse = errors.New("lsock: address already in use")

	// ErrWouldBlock is returned by non-blocking operations, and readiness-
	// polled operations that have not yet progressed.
	ErrWouldBlock = errors.New("lsock: operation would block")

	// ErrTimedOut is returned when a timeout elapses before an operation
	// completes.
	ErrTimedOut = errors.New("lsock: operation timed out")

	// ErrBrokenPipe is reported only to writers whose peer has gone away.
	// Readers observe EOF instead; see Stream.Read's thunking behavior on
	// Windows.
	ErrBrokenPipe = errors.New("lsock: broken pipe")

	// ErrUnsupported indicates that this build does not support the
	// requested name form or capability.
	ErrUnsupported = errors.New("lsock: unsupported on this platform")

	// ErrInvalidInput indicates a name failed validation.
	ErrInvalidInput = errors.New("lsock: invalid name")
)

// ConversionKind classifies why constructing a Stream or Listener from a raw
// OS handle/file descriptor failed.
type ConversionKind int

const (
	// KindIsServerCheckFailed means the implementation could not determine
	// whether the handle represents a pipe server or client arm.
	KindIsServerCheckFailed ConversionKind = iota
	// KindNoMessageBoundaries means message-mode was requested but the
	// handle does not preserve message boundaries.
	KindNoMessageBoundaries
	// KindNotASocket means the descriptor does not refer to a usable local
	// socket handle at all.
	KindNotASocket
)

func (k ConversionKind) String() string {
	switch k {
	case KindIsServerCheckFailed:
		return "is-server check failed"
	case KindNoMessageBoundaries:
		return "no message boundaries"
	case KindNotASocket:
		return "not a socket"
	default:
		return "unknown"
	}
}

// ConversionError describes a raw OS resource (handle or file descriptor)
// that failed validation as a Stream or Listener. It records the kind of
// failure and its cause; it does not hold the resource itself.
type ConversionError struct {
	Kind ConversionKind
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("lsock: conversion failed (%s): %v", e.Kind, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// wrapErr attaches msg to sentinel while keeping it matchable with errors.Is:
// pkg/errors.Wrap implements Unwrap, so errors.Is still sees through to
// sentinel.
func wrapErr(sentinel error, msg string) error {
	return pkgerrors.Wrap(sentinel, msg)
}

// wrapOSErr is translateErr's workhorse on both backends: it folds the raw
// OS error into the uniform sentinel (so callers can match either with
// errors.Is) and attaches msg as human-readable context via pkg/errors, the
// same way wrapErr does for caller-input errors.
func wrapOSErr(sentinel, cause error, msg string) error {
	return pkgerrors.Wrap(fmt.Errorf("%w: %w", sentinel, cause), msg)
}
