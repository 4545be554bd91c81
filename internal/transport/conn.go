package transport

import (
	"context"
	"time"
)

// Conn is a byte-stream connection to one device.
//
// Implementations must be safe for one reader goroutine and one writer
// goroutine running concurrently, with Close callable from either.
type Conn interface {
	// Open establishes the connection. Opening an open connection is a no-op.
	Open(ctx context.Context) error

	// Close releases the connection. Closing a closed connection is a no-op.
	Close() error

	// Read reads up to len(buf) bytes, waiting at most timeout.
	// It returns ErrTimeout when nothing arrived and ErrClosed when the
	// connection is not open.
	Read(buf []byte, timeout time.Duration) (int, error)

	// Write sends all of buf or returns an error. Partial writes are retried
	// internally and never surface to the caller.
	Write(buf []byte) error

	// IsOpen reports whether the connection is currently open.
	IsOpen() bool

	// Endpoint returns the remote address for logging.
	Endpoint() string
}
