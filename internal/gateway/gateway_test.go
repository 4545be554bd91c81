package gateway

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
	"github.com/nerrad567/echo-control-core/internal/transport"
)

// mockTarget records submitted packets.
type mockTarget struct {
	mu        sync.Mutex
	handles   map[device.ID]supervisor.Handle
	submitted []submission
	submitErr error
}

type submission struct {
	handle supervisor.Handle
	packet protocol.Packet
}

func newMockTarget() *mockTarget {
	return &mockTarget{handles: make(map[device.ID]supervisor.Handle)}
}

func (m *mockTarget) HandleFor(id device.ID) (supervisor.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	return h, ok
}

func (m *mockTarget) Submit(h supervisor.Handle, pkt protocol.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, submission{handle: h, packet: pkt})
	return nil
}

func (m *mockTarget) submissions() []submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]submission(nil), m.submitted...)
}

var (
	lightID = device.MakeID(protocol.FamilyLight, 2, 1)
	ptzID   = device.MakeID(protocol.FamilyPTZ, 1, 1)
)

func startServer(t *testing.T, cfg Config, target Target) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	s := New(cfg, protocol.NewCatalogueRegistry(), target)
	if err := s.Serve(ln); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // Test cleanup
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
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

func writePacket(t *testing.T, conn net.Conn, id device.ID, pkt protocol.Packet) {
	t.Helper()
	data, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := conn.Write(EncodeFrame(id, data)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

// readFrame reads one frame body from conn.
func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var prefix [transport.FrameHeaderSize]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		t.Fatalf("reading frame length: %v", err)
	}
	body := make([]byte, binary.BigEndian.Uint32(prefix[:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		t.Fatalf("reading frame body: %v", err)
	}
	return body
}

func TestSubmitsDecodedRequest(t *testing.T) {
	target := newMockTarget()
	target.handles[lightID] = 3
	s := startServer(t, Config{}, target)
	conn := dial(t, s)

	writePacket(t, conn, lightID, protocol.NewLightLevelReq(70))

	waitFor(t, "submission", func() bool { return len(target.submissions()) == 1 })
	got := target.submissions()[0]
	if got.handle != 3 {
		t.Errorf("handle = %d, want 3", got.handle)
	}
	if got.packet.ID() != protocol.IDLightLevelReq {
		t.Errorf("packet = %s, want LightLevelReq", got.packet.Name())
	}
	msg, ok := got.packet.(*protocol.Message[protocol.Level])
	if !ok || msg.Body.Value != 70 {
		t.Errorf("packet body = %+v", got.packet)
	}
}

func TestDropsBadFramesAndKeepsConnection(t *testing.T) {
	target := newMockTarget()
	target.handles[ptzID] = 1
	s := startServer(t, Config{}, target)
	conn := dial(t, s)

	// Unknown device id.
	writePacket(t, conn, lightID, protocol.NewLightSwitchReq(true))
	// Body too short to hold an id.
	if _, err := conn.Write(transport.AppendFrame(nil, []byte{0x01, 0x02})); err != nil {
		t.Fatal(err)
	}
	// Unregistered packet id.
	junk := make([]byte, 4, 4+protocol.HeaderSize)
	binary.BigEndian.PutUint32(junk, uint32(ptzID))
	junk = append(junk, make([]byte, protocol.HeaderSize)...)
	binary.NativeEndian.PutUint32(junk[4:], protocol.Magic)
	binary.NativeEndian.PutUint32(junk[8:], 0x7F7F7FFF)
	if _, err := conn.Write(transport.AppendFrame(nil, junk)); err != nil {
		t.Fatal(err)
	}
	// A valid request still gets through afterwards.
	writePacket(t, conn, ptzID, protocol.NewPtzStopReq())

	waitFor(t, "submission", func() bool { return len(target.submissions()) == 1 })
	if got := target.submissions()[0].packet.ID(); got != protocol.IDPtzStopReq {
		t.Errorf("submitted %v, want PtzStopReq", got)
	}
	if s.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", s.ClientCount())
	}
}

func TestHandleFrameErrors(t *testing.T) {
	target := newMockTarget()
	target.handles[lightID] = 1
	s := New(Config{}, protocol.NewCatalogueRegistry(), target)

	req, err := protocol.NewLightSwitchReq(true).Encode()
	if err != nil {
		t.Fatal(err)
	}
	body := func(id device.ID) []byte { return EncodeFrame(id, req)[transport.FrameHeaderSize:] }

	if err := s.handleFrame([]byte{1}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short frame error = %v", err)
	}
	if err := s.handleFrame(body(ptzID)); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("unknown id error = %v", err)
	}
	if err := s.handleFrame(body(lightID)); err != nil {
		t.Errorf("valid frame error = %v", err)
	}

	target.submitErr = supervisor.ErrDeviceNotFound
	if err := s.handleFrame(body(lightID)); !errors.Is(err, supervisor.ErrDeviceNotFound) {
		t.Errorf("submit error = %v", err)
	}
}

func TestOversizeFrameClosesConnection(t *testing.T) {
	s := startServer(t, Config{MaxFrame: 64}, newMockTarget())
	conn := dial(t, s)
	waitFor(t, "client", func() bool { return s.ClientCount() == 1 })

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 1024)
	if _, err := conn.Write(prefix[:]); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "disconnect", func() bool { return s.ClientCount() == 0 })
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Read() succeeded on a dropped connection")
	}
}

func TestBroadcastsPushes(t *testing.T) {
	s := startServer(t, Config{}, newMockTarget())
	a := dial(t, s)
	b := dial(t, s)
	waitFor(t, "clients", func() bool { return s.ClientCount() == 2 })

	push := protocol.NewLightStatusPush(protocol.LightStatus{IsOpen: 1, Brightness: 40})
	s.HandlePush(device.Push{Device: lightID, Slot: 2, Packet: push})

	want, err := push.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for name, conn := range map[string]net.Conn{"a": a, "b": b} {
		body := readFrame(t, conn)
		if id := device.ID(binary.BigEndian.Uint32(body)); id != lightID {
			t.Errorf("client %s: id = %s, want %s", name, id.Hex(), lightID.Hex())
		}

		pkt, err := protocol.NewCatalogueRegistry().Decode(body[4:])
		if err != nil {
			t.Fatalf("client %s: Decode() error = %v", name, err)
		}
		got, ok := pkt.(*protocol.Message[protocol.LightStatus])
		if !ok || got.Body.Brightness != 40 || got.Body.IsOpen != 1 {
			t.Errorf("client %s: packet = %+v", name, pkt)
		}
		if len(body[4:]) != len(want) {
			t.Errorf("client %s: packet length = %d, want %d", name, len(body[4:]), len(want))
		}
	}
}

func TestMaxClients(t *testing.T) {
	s := startServer(t, Config{MaxClients: 1}, newMockTarget())
	dial(t, s)
	waitFor(t, "first client", func() bool { return s.ClientCount() == 1 })

	second := dial(t, s)
	if err := second.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Read(make([]byte, 1)); err == nil {
		t.Error("second client was not refused")
	}
	if s.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", s.ClientCount())
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	s := startServer(t, Config{}, newMockTarget())
	conn := dial(t, s)
	waitFor(t, "client", func() bool { return s.ClientCount() == 1 })

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.ClientCount() != 0 {
		t.Errorf("ClientCount() after Close = %d", s.ClientCount())
	}
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("connection still open after Close")
	}

	// Pushes after Close are discarded.
	s.HandlePush(device.Push{Device: lightID, Packet: protocol.NewSoundPlayEndPush()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve() after Close error = %v", err)
	}
}

func TestEncodeFrame(t *testing.T) {
	frame := EncodeFrame(device.ID(0x01000201), []byte{0xAA, 0xBB})
	want := []byte{0, 0, 0, 6, 0x01, 0x00, 0x02, 0x01, 0xAA, 0xBB}
	if string(frame) != string(want) {
		t.Errorf("EncodeFrame() = % X, want % X", frame, want)
	}
}
