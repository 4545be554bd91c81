package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrTimeout is returned by Read when no data arrived within the timeout.
	// It is a normal outcome, not a connection failure.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrClosed is returned when operating on a connection that is not open.
	ErrClosed = errors.New("transport: connection closed")

	// ErrFrameTooLarge is returned when a frame exceeds the framer's limit.
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrBufferFull is returned when fed data does not fit in the framer.
	ErrBufferFull = errors.New("transport: frame buffer full")
)
