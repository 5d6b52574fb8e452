package chat

import "errors"

var (
	// ErrClosed is returned by operations on a Session after Close.
	ErrClosed = errors.New("chat: session closed")

	// ErrStale is returned when a result arrives after the session was
	// deactivated or closed. The result is not applied.
	ErrStale = errors.New("chat: stale result dropped")

	ErrEmptyContent   = errors.New("chat: message content is empty")
	ErrContentTooLong = errors.New("chat: message content is too long")

	// ErrDeleteRejected is returned when the server answers a delete with
	// success=false.
	ErrDeleteRejected = errors.New("chat: delete rejected by server")

	// ErrNotConnected is returned by operations that need the live
	// transport when it is not connected.
	ErrNotConnected = errors.New("chat: not connected")
)
