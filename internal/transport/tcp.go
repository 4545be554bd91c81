package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// Default TCP timeouts.
const (
	defaultConnectTimeout = 3 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// TCPConfig holds the settings for a TCP device connection.
type TCPConfig struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// TCPConn is a Conn over a TCP socket.
type TCPConn struct {
	cfg TCPConfig

	mu   sync.RWMutex
	conn net.Conn

	// writeMu serialises writers so a frame is never interleaved.
	writeMu sync.Mutex
}

// NewTCP creates an unopened TCP connection.
//
// Parameters:
//   - cfg: Endpoint and timeouts; zero timeouts use package defaults
//
// Returns:
//   - *TCPConn: The connection, ready for Open
func NewTCP(cfg TCPConfig) *TCPConn {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &TCPConn{cfg: cfg}
}

// Endpoint implements Conn.
func (c *TCPConn) Endpoint() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Open implements Conn. The dial is bounded by the connect timeout and ctx.
func (c *TCPConn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", c.Endpoint())
	if err != nil {
		return fmt.Errorf("dial tcp://%s: %w", c.Endpoint(), err)
	}
	c.conn = conn
	return nil
}

// Close implements Conn.
func (c *TCPConn) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsOpen implements Conn.
func (c *TCPConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *TCPConn) current() net.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Read implements Conn.
func (c *TCPConn) Read(buf []byte, timeout time.Duration) (int, error) {
	conn := c.current()
	if conn == nil {
		return 0, ErrClosed
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	n, err := conn.Read(buf)
	if err == nil {
		return n, nil
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return n, ErrTimeout
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return n, fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return n, fmt.Errorf("read %s: %w", c.Endpoint(), err)
	}
}

// Write implements Conn.
func (c *TCPConn) Write(buf []byte) error {
	conn := c.current()
	if conn == nil {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return fmt.Errorf("write %s: %w", c.Endpoint(), err)
		}
		buf = buf[n:]
	}
	return nil
}
