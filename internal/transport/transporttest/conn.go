// Package transporttest provides an in-memory transport.Conn for driver and
// actor tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/echo-control-core/internal/transport"
)

// Conn is a scripted transport.Conn. Bytes passed to Inject are returned by
// Read in order; every Write is recorded.
type Conn struct {
	mu       sync.Mutex
	open     bool
	writes   [][]byte
	opens    int
	closes   int
	timeouts int

	// OpenErr, WriteErr and ReadErr make the matching call fail when set.
	OpenErr  error
	WriteErr error
	ReadErr  error

	incoming chan []byte
}

var _ transport.Conn = (*Conn)(nil)

// New creates a closed fake connection.
func New() *Conn {
	return &Conn{incoming: make(chan []byte, 64)}
}

// Endpoint implements transport.Conn.
func (c *Conn) Endpoint() string { return "fake:0" }

// Open implements transport.Conn.
func (c *Conn) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.open = true
	c.opens++
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.closes++
	}
	c.open = false
	return nil
}

// IsOpen implements transport.Conn.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Read implements transport.Conn.
func (c *Conn) Read(buf []byte, timeout time.Duration) (int, error) {
	c.mu.Lock()
	open, readErr := c.open, c.ReadErr
	c.mu.Unlock()

	if !open {
		return 0, transport.ErrClosed
	}
	if readErr != nil {
		return 0, readErr
	}

	select {
	case data := <-c.incoming:
		return copy(buf, data), nil
	case <-time.After(timeout):
		c.mu.Lock()
		c.timeouts++
		c.mu.Unlock()
		return 0, transport.ErrTimeout
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return transport.ErrClosed
	}
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.writes = append(c.writes, append([]byte(nil), buf...))
	return nil
}

// Inject queues bytes for a future Read.
func (c *Conn) Inject(data []byte) {
	c.incoming <- append([]byte(nil), data...)
}

// SetWriteErr sets WriteErr under the lock.
func (c *Conn) SetWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteErr = err
}

// SetReadErr sets ReadErr under the lock.
func (c *Conn) SetReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadErr = err
}

// Writes returns a copy of every successful write.
func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// LastWrite returns the most recent write, or nil.
func (c *Conn) LastWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return c.writes[len(c.writes)-1]
}

// Opens returns how many times Open succeeded.
func (c *Conn) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Closes returns how many times an open connection was closed.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Timeouts returns how many reads ended in ErrTimeout.
func (c *Conn) Timeouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeouts
}
