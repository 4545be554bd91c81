package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/echo-control-core/internal/auth"
	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/fanout"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/config"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/logging"
)

// Hub tracks WebSocket clients and relays device pushes to them.
//
// Thread Safety:
//   - HandlePush runs on the supervisor fan-in goroutine and never blocks;
//     a client whose buffer is full misses the event.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	dropped atomic.Uint64
	now     func() time.Time
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string
	role    auth.Role

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	channels map[string]struct{}
	devices  map[device.ID]struct{} // empty: every device
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
		now:     time.Now,
	}
}

func newWSClient(h *Hub, conn *websocket.Conn, subject string, role auth.Role) *WSClient {
	return &WSClient{
		hub:      h,
		conn:     conn,
		subject:  subject,
		role:     role,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		devices:  make(map[device.ID]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were skipped because a client's buffer
// was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// HandlePush relays a device push on channel ChannelPrefix + kind, e.g.
// "device.status". It implements supervisor.Sink.
func (h *Hub) HandlePush(p device.Push) {
	env := fanout.Describe(p, h.now())
	h.Broadcast(ChannelPrefix+string(env.Kind), p.Device, env)
}

// Broadcast sends payload to every client subscribed to channel whose
// device filter admits id.
func (h *Hub) Broadcast(channel string, id device.ID, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(channel, id) {
			continue
		}
		if !c.trySend(data) {
			h.dropped.Add(1)
		}
	}
}

// wants reports whether the client subscribed to channel, directly or via
// ChannelAllDevices, and its device filter admits id.
func (c *WSClient) wants(channel string, id device.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, direct := c.channels[channel]
	_, all := c.channels[ChannelAllDevices]
	if !direct && !(all && strings.HasPrefix(channel, ChannelPrefix)) {
		return false
	}
	if len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[id]
	return ok
}

// subscribe adds or removes channels and device filters.
func (c *WSClient) subscribe(channels []string, ids []device.ID, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	for _, id := range ids {
		if add {
			c.devices[id] = struct{}{}
		} else {
			delete(c.devices, id)
		}
	}
}

// trySend queues data without blocking. It returns false when the buffer is
// full; sends after close are discarded.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close closes the send channel once so the write pump exits.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
