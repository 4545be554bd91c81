package link

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/transport"
	"github.com/nerrad567/echo-control-core/internal/transport/transporttest"
)

// testDriver is a bare driver built on Link.
type testDriver struct {
	*Link
}

func (d *testDriver) Declare(*device.Properties) {}

func (d *testDriver) Configure(a *device.Actor) error { return d.Bind(a) }

type dialRecorder struct {
	mu        sync.Mutex
	endpoints []string
	conns     []*transporttest.Conn
}

func (r *dialRecorder) dial(host string, port int, _ time.Duration) transport.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := transporttest.New()
	r.endpoints = append(r.endpoints, net.JoinHostPort(host, strconv.Itoa(port)))
	r.conns = append(r.conns, c)
	return c
}

func newBound(t *testing.T, cfg map[string]string) (*testDriver, *device.Actor, *dialRecorder) {
	t.Helper()
	rec := &dialRecorder{}
	d := &testDriver{Link: New(rec.dial, 100*time.Millisecond)}
	a := device.NewActor(d, device.ActorConfig{})
	if err := a.Init(1, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(a.Stop)
	return d, a, rec
}

func TestBindBuildsTransport(t *testing.T) {
	d, a, rec := newBound(t, map[string]string{
		device.PropID:   "0x01000201",
		device.PropIP:   "10.0.0.9",
		device.PropPort: "1234",
	})
	if len(rec.endpoints) != 1 || rec.endpoints[0] != "10.0.0.9:1234" {
		t.Errorf("endpoints = %v", rec.endpoints)
	}
	if d.Actor() != a {
		t.Error("Actor() not bound")
	}
}

func TestBindRejectsBadPort(t *testing.T) {
	d := &testDriver{Link: New((&dialRecorder{}).dial, time.Second)}
	a := device.NewActor(d, device.ActorConfig{})
	err := a.Init(1, map[string]string{device.PropID: "0x01000201", device.PropPort: "0"})
	if !errors.Is(err, device.ErrInvalidProperty) {
		t.Errorf("Init() error = %v, want ErrInvalidProperty", err)
	}
}

func TestConnectSendDisconnect(t *testing.T) {
	d, _, rec := newBound(t, map[string]string{device.PropID: "0x01000201"})
	conn := rec.conns[0]

	if err := d.Send([]byte{1}); !errors.Is(err, device.ErrNotConnected) {
		t.Errorf("Send() before Connect error = %v", err)
	}
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := d.Send([]byte{1, 2}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := conn.LastWrite(); len(got) != 2 {
		t.Errorf("LastWrite() = %v", got)
	}

	d.Disconnect()
	d.Disconnect()
	if conn.IsOpen() || conn.Closes() != 1 {
		t.Errorf("IsOpen = %v, Closes = %d", conn.IsOpen(), conn.Closes())
	}
}

func TestConnectError(t *testing.T) {
	d, _, rec := newBound(t, map[string]string{device.PropID: "0x01000201"})
	rec.conns[0].OpenErr = errors.New("refused")

	if err := d.Connect(context.Background()); err == nil {
		t.Error("Connect() error = nil")
	}
}

func TestConfigChangedRebuilds(t *testing.T) {
	d, _, rec := newBound(t, map[string]string{device.PropID: "0x01000201", device.PropPort: "1000"})

	d.ConfigChanged(device.PropName, "ignored")
	if len(rec.endpoints) != 1 {
		t.Fatalf("name change rebuilt the transport: %v", rec.endpoints)
	}

	if err := d.Actor().Properties().Set(device.PropPort, "2000"); err != nil {
		t.Fatal(err)
	}
	d.ConfigChanged(device.PropPort, "2000")
	if len(rec.endpoints) != 2 || rec.endpoints[1] != "127.0.0.1:2000" {
		t.Errorf("endpoints = %v", rec.endpoints)
	}
	if d.Conn() != rec.conns[1] {
		t.Error("Conn() still points at the old transport")
	}
}
