// Package drivertest runs a model driver inside a real actor over an
// in-memory transport.
package drivertest

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/drivers/link"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/transport"
	"github.com/nerrad567/echo-control-core/internal/transport/transporttest"
)

// Recorder collects pushes emitted by an actor.
type Recorder struct {
	mu     sync.Mutex
	pushes []device.Push
}

// Emit is an ActorConfig.Emit callback.
func (r *Recorder) Emit(p device.Push) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, p)
}

// Packets returns every recorded packet with the given id.
func (r *Recorder) Packets(id protocol.ID) []protocol.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Packet
	for _, p := range r.pushes {
		if p.Packet.ID() == id {
			out = append(out, p.Packet)
		}
	}
	return out
}

// Harness is a started actor wired to a fake connection.
type Harness struct {
	Actor  *device.Actor
	Driver device.Driver
	Conn   *transporttest.Conn
	Pushes *Recorder

	mu    sync.Mutex
	dials []string
}

// Dialer returns a link.Dialer that hands out h.Conn and records endpoints.
func (h *Harness) Dialer() link.Dialer {
	return func(host string, port int, _ time.Duration) transport.Conn {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.dials = append(h.dials, net.JoinHostPort(host, strconv.Itoa(port)))
		return h.Conn
	}
}

// Dials returns the endpoints passed to the dialer.
func (h *Harness) Dials() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.dials...)
}

// Start builds a driver with ctor, initialises it with cfg and waits until
// the device is ONLINE. The actor is stopped on test cleanup.
func Start(t *testing.T, ctor func(link.Dialer) device.Driver, cfg map[string]string) *Harness {
	t.Helper()

	h := &Harness{Conn: transporttest.New(), Pushes: &Recorder{}}
	h.Driver = ctor(h.Dialer())
	h.Actor = device.NewActor(h.Driver, device.ActorConfig{
		ReadTimeout:       20 * time.Millisecond,
		ReconnectInterval: 20 * time.Millisecond,
		AutoConnect:       true,
		Emit:              h.Pushes.Emit,
	})
	if err := h.Actor.Init(1, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(h.Actor.Stop)

	if err := h.Actor.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	WaitFor(t, "device online", h.Actor.IsOnline)
	return h
}

// WaitFor polls cond for up to two seconds.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
