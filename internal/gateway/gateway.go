package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
	"github.com/nerrad567/echo-control-core/internal/transport"
)

const (
	// idSize is the length of the device id that prefixes every frame body.
	idSize = 4

	// sendBufferSize is the per-client outbound frame buffer.
	sendBufferSize = 64

	// readChunk caps a single socket read. Reads never exceed one maximum
	// frame so a drained framer always has room.
	readChunk = 4096

	defaultMaxClients   = 16
	defaultWriteTimeout = 5 * time.Second
)

// Logger is the logging surface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Target resolves device ids and accepts packets for them.
type Target interface {
	HandleFor(id device.ID) (supervisor.Handle, bool)
	Submit(h supervisor.Handle, pkt protocol.Packet) error
}

// Config holds gateway settings.
type Config struct {
	Addr         string
	MaxFrame     int
	MaxClients   int
	WriteTimeout time.Duration
}

// Server accepts gateway clients.
type Server struct {
	cfg      Config
	registry *protocol.Registry
	target   Target
	logger   Logger

	mu       sync.Mutex
	listener net.Listener
	clients  map[*client]struct{}
	closed   bool
	wg       sync.WaitGroup
}

type client struct {
	conn      net.Conn
	send      chan []byte
	closeOnce sync.Once
}

// close shuts the connection. The send channel is closed by the server when
// the client is removed.
func (c *client) close() {
	c.closeOnce.Do(func() { c.conn.Close() }) //nolint:errcheck // best-effort close
}

// New creates a gateway server. Zero config values fall back to defaults.
func New(cfg Config, registry *protocol.Registry, target Target) *Server {
	if cfg.MaxFrame <= 0 {
		cfg.MaxFrame = transport.DefaultMaxFrame
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		target:   target,
		logger:   noopLogger{},
		clients:  make(map[*client]struct{}),
	}
}

// SetLogger sets the logger.
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln in the background. The server owns ln
// and closes it on Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close() //nolint:errcheck // never served
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "max_clients", s.cfg.MaxClients)

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting, disconnects every client and waits for the
// connection goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range clients {
		c.close()
	}
	s.wg.Wait()
	s.logger.Info("gateway stopped")
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("gateway accept failed", "error", err)
			continue
		}

		c, ok := s.register(conn)
		if !ok {
			continue
		}
		s.wg.Add(2)
		go s.readLoop(c)
		go s.writeLoop(c)
	}
}

// register adds conn as a client, refusing it when the server is full or closed.
func (s *Server) register(conn net.Conn) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.clients) >= s.cfg.MaxClients {
		s.logger.Warn("gateway client refused",
			"remote", conn.RemoteAddr().String(),
			"clients", len(s.clients),
		)
		conn.Close() //nolint:errcheck // refused connection
		return nil, false
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	s.clients[c] = struct{}{}
	s.logger.Info("gateway client connected", "remote", conn.RemoteAddr().String(), "clients", len(s.clients))
	return c, true
}

// unregister removes c. Only the caller that removes it closes the send channel.
func (s *Server) unregister(c *client) {
	s.mu.Lock()
	_, existed := s.clients[c]
	delete(s.clients, c)
	remaining := len(s.clients)
	s.mu.Unlock()

	c.close()
	if existed {
		close(c.send)
		s.logger.Info("gateway client disconnected", "remote", c.conn.RemoteAddr().String(), "clients", remaining)
	}
}

func (s *Server) readLoop(c *client) {
	defer s.wg.Done()
	defer s.unregister(c)

	framer := transport.NewFramer(s.cfg.MaxFrame)
	buf := make([]byte, min(readChunk, s.cfg.MaxFrame+transport.FrameHeaderSize))
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if ferr := framer.Feed(buf[:n]); ferr != nil {
				s.logger.Warn("gateway framing failed", "remote", c.conn.RemoteAddr().String(), "error", ferr)
				return
			}
			if !s.drain(c, framer) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drain handles every complete frame buffered in framer. It returns false
// when the stream can no longer be trusted.
func (s *Server) drain(c *client, framer *transport.Framer) bool {
	for {
		body, ok, err := framer.Next()
		if err != nil {
			s.logger.Warn("gateway dropped client", "remote", c.conn.RemoteAddr().String(), "error", err)
			return false
		}
		if !ok {
			return true
		}
		if err := s.handleFrame(body); err != nil {
			s.logger.Warn("gateway frame dropped", "remote", c.conn.RemoteAddr().String(), "error", err)
		}
	}
}

// handleFrame decodes one frame body and submits it to its device.
func (s *Server) handleFrame(body []byte) error {
	if len(body) < idSize {
		return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(body))
	}
	id := device.ID(binary.BigEndian.Uint32(body[:idSize]))

	pkt, err := s.registry.Decode(body[idSize:])
	if err != nil {
		return fmt.Errorf("decoding packet for %s: %w", id.Hex(), err)
	}

	h, ok := s.target.HandleFor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id.Hex())
	}
	if err := s.target.Submit(h, pkt); err != nil {
		return fmt.Errorf("submitting %s to %s: %w", pkt.Name(), id.Hex(), err)
	}
	s.logger.Debug("gateway packet submitted", "device_id", id.Hex(), "packet", pkt.Name(), "handle", int(h))
	return nil
}

func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for frame := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			c.close()
			continue
		}
		if _, err := c.conn.Write(frame); err != nil {
			s.logger.Debug("gateway write failed", "remote", c.conn.RemoteAddr().String(), "error", err)
			c.close()
		}
	}
}

// HandlePush frames p with its source id and broadcasts it to every client.
// Clients whose buffer is full miss the frame.
func (s *Server) HandlePush(p device.Push) {
	encoded, err := p.Packet.Encode()
	if err != nil {
		s.logger.Error("gateway push encode failed", "device_id", p.Device.Hex(), "packet", p.Packet.Name(), "error", err)
		return
	}
	frame := EncodeFrame(p.Device, encoded)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			s.logger.Warn("gateway client send buffer full", "remote", c.conn.RemoteAddr().String(), "packet", p.Packet.Name())
		}
	}
}

// EncodeFrame builds a complete length-prefixed frame for packet bytes
// addressed to id.
func EncodeFrame(id device.ID, packet []byte) []byte {
	body := make([]byte, idSize, idSize+len(packet))
	binary.BigEndian.PutUint32(body, uint32(id))
	body = append(body, packet...)
	return transport.AppendFrame(make([]byte, 0, transport.FrameHeaderSize+len(body)), body)
}
