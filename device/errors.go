package device

import "errors"

var (
	// ErrOutOfMemory is returned when a device allocation cannot be served.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrReleased is returned when a buffer handle is used or released after
	// it has already been released.
	ErrReleased = errors.New("device: buffer already released")

	// ErrLengthMismatch is returned when the operands of a primitive disagree
	// in length.
	ErrLengthMismatch = errors.New("device: length mismatch")

	// ErrIndexOutOfRange is returned by Gather for an index outside src.
	ErrIndexOutOfRange = errors.New("device: gather index out of range")

	// ErrStreamClosed is returned when work is enqueued on a closed stream.
	ErrStreamClosed = errors.New("device: stream closed")
)
