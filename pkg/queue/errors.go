package queue

import "errors"

var (
	// ErrCorruptRecord indicates a persisted request could not be decoded
	ErrCorruptRecord = errors.New("corrupt queue record")

	// ErrClosed is returned by backends used after Close
	ErrClosed = errors.New("queue persistence closed")
)
