// Package link holds the transport plumbing shared by the model drivers.
//
// A Link owns one transport.Conn built from the device's IP and Port
// properties. Drivers embed *Link to inherit Connect, Disconnect and
// ConfigChanged, and call Send to write frames.
package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/transport"
)

// Dialer builds the transport for a device endpoint.
type Dialer func(host string, port int, connectTimeout time.Duration) transport.Conn

// TCP is the production Dialer.
func TCP(host string, port int, connectTimeout time.Duration) transport.Conn {
	return transport.NewTCP(transport.TCPConfig{
		Host:           host,
		Port:           port,
		ConnectTimeout: connectTimeout,
	})
}

// Link is the connection half of a driver.
type Link struct {
	dial           Dialer
	connectTimeout time.Duration

	mu    sync.RWMutex
	conn  transport.Conn
	actor *device.Actor
}

// New creates an unbound link.
//
// Parameters:
//   - dial: Transport constructor; nil uses TCP
//   - connectTimeout: Bound on each Open
func New(dial Dialer, connectTimeout time.Duration) *Link {
	if dial == nil {
		dial = TCP
	}
	return &Link{dial: dial, connectTimeout: connectTimeout}
}

// Bind attaches the link to its actor and builds the transport from the
// actor's IP and Port. Drivers call it from Configure.
func (l *Link) Bind(a *device.Actor) error {
	l.mu.Lock()
	l.actor = a
	l.mu.Unlock()
	return l.rebuild()
}

func (l *Link) rebuild() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	props := l.actor.Properties()
	host := props.String(device.PropIP)
	port := props.Int(device.PropPort, 0)
	if host == "" || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: endpoint %q:%d", device.ErrInvalidProperty, host, port)
	}

	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = l.dial(host, port, l.connectTimeout)
	return nil
}

// Actor returns the bound actor.
func (l *Link) Actor() *device.Actor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.actor
}

// Conn returns the current transport.
func (l *Link) Conn() transport.Conn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn
}

// Connect opens the transport. Called by the actor's connect loop.
func (l *Link) Connect(ctx context.Context) error {
	conn := l.Conn()
	if conn == nil {
		return device.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, l.connectTimeout)
	defer cancel()
	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", conn.Endpoint(), err)
	}
	return nil
}

// Disconnect closes the transport. Safe to call repeatedly.
func (l *Link) Disconnect() {
	if conn := l.Conn(); conn != nil {
		_ = conn.Close()
	}
}

// Send writes one frame. A write failure moves the device to ERROR with
// ErrCodeWrite; the actor then closes the transport and retries.
//
// Returns:
//   - error: device.ErrNotConnected when the transport is closed, or the
//     wrapped write error
func (l *Link) Send(frame []byte) error {
	conn := l.Conn()
	if conn == nil || !conn.IsOpen() {
		return device.ErrNotConnected
	}
	if err := conn.Write(frame); err != nil {
		err = fmt.Errorf("writing to %s: %w", conn.Endpoint(), err)
		if a := l.Actor(); a != nil {
			a.ReportError(device.ErrCodeWrite, err)
		}
		return err
	}
	return nil
}

// Read reads from the transport for a RawReader implementation.
func (l *Link) Read(buf []byte, timeout time.Duration) (int, error) {
	conn := l.Conn()
	if conn == nil {
		return 0, transport.ErrClosed
	}
	return conn.Read(buf, timeout)
}

// ConfigChanged rebuilds the transport when the endpoint changes. An online
// device is moved OFFLINE so the connect loop dials the new endpoint. It
// runs on the actor goroutine, so the rebuild completes before the queued
// connect attempt.
func (l *Link) ConfigChanged(key, value string) {
	if key != device.PropIP && key != device.PropPort {
		return
	}
	a := l.Actor()
	if a == nil {
		return
	}
	// Leave ONLINE first so the reader stops before the old conn goes away.
	if a.IsOnline() {
		_ = a.SetState(device.StateOffline, device.ErrCodeNone)
	}
	if err := l.rebuild(); err != nil {
		a.Logger().Warn("endpoint change rejected", "device", a.ID(), "key", key, "value", value, "error", err)
	}
}
