package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/transport/transporttest"
)

const testReadTimeout = 20 * time.Millisecond

// fakeDriver records lifecycle calls and custom events.
type fakeDriver struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	failConnect int // number of Connect calls that fail before success
	blockUntil  bool
	configured  *Actor

	events chan string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{events: make(chan string, 16)}
}

func (d *fakeDriver) Declare(p *Properties) {
	p.Declare("Colour", "white", PropString, "Test property")
}

func (d *fakeDriver) Configure(a *Actor) error {
	d.configured = a
	return nil
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	d.connects++
	fail := d.failConnect > 0
	if fail {
		d.failConnect--
	}
	block := d.blockUntil
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("connection refused")
	}
	return nil
}

func (d *fakeDriver) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
}

func (d *fakeDriver) HandleEvent(name string) { d.events <- name }

func (d *fakeDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// readerDriver adds a RawReader over a fake transport.
type readerDriver struct {
	*fakeDriver
	conn *transporttest.Conn
	data chan []byte
}

func newReaderDriver() *readerDriver {
	return &readerDriver{fakeDriver: newFakeDriver(), conn: transporttest.New(), data: make(chan []byte, 16)}
}

func (d *readerDriver) Connect(ctx context.Context) error {
	if err := d.fakeDriver.Connect(ctx); err != nil {
		return err
	}
	return d.conn.Open(ctx)
}

func (d *readerDriver) Disconnect() {
	d.fakeDriver.Disconnect()
	d.conn.Close()
}

func (d *readerDriver) ReadRaw(buf []byte, timeout time.Duration) (int, error) {
	return d.conn.Read(buf, timeout)
}

func (d *readerDriver) OnRawData(data []byte) {
	d.data <- append([]byte(nil), data...)
}

// pushRecorder collects pushes.
type pushRecorder struct {
	mu     sync.Mutex
	pushes []Push
}

func (r *pushRecorder) emit(p Push) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, p)
}

func (r *pushRecorder) statuses() []protocol.DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.DeviceStatus
	for _, p := range r.pushes {
		if m, ok := p.Packet.(*protocol.Message[protocol.DeviceStatus]); ok {
			out = append(out, m.Body)
		}
	}
	return out
}

func (r *pushRecorder) lastStatus() (protocol.DeviceStatus, bool) {
	s := r.statuses()
	if len(s) == 0 {
		return protocol.DeviceStatus{}, false
	}
	return s[len(s)-1], true
}

func newTestActor(t *testing.T, drv Driver, cfg ActorConfig) (*Actor, *pushRecorder) {
	t.Helper()

	rec := &pushRecorder{}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = testReadTimeout
	}
	cfg.Emit = rec.emit

	a := NewActor(drv, cfg)
	if err := a.Init(3, map[string]string{"ID": "0x01000201", "Name": "Stage left"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(a.Stop)
	return a, rec
}

// forceState puts the machine into s without running hooks.
func forceState(a *Actor, s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.machine.SetState(s.String())
	a.state.Store(uint32(s))
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func goOnline(t *testing.T, a *Actor) {
	t.Helper()
	if err := a.SetState(StateConnecting, 0); err != nil {
		t.Fatalf("SetState(CONNECTING) error = %v", err)
	}
	if err := a.SetState(StateOnline, 0); err != nil {
		t.Fatalf("SetState(ONLINE) error = %v", err)
	}
}

func TestActorInit(t *testing.T) {
	drv := newFakeDriver()
	a, rec := newTestActor(t, drv, ActorConfig{})

	if a.State() != StateInitialized {
		t.Errorf("State() = %s, want INITIALIZED", a.State())
	}
	if a.ID() != 0x01000201 || a.Slot() != 3 || a.Name() != "Stage left" {
		t.Errorf("ID = %s, Slot = %d, Name = %q", a.ID().Hex(), a.Slot(), a.Name())
	}
	if a.Properties().String("Colour") != "white" {
		t.Error("driver property not declared")
	}
	if drv.configured != a {
		t.Error("Configure() not called with the actor")
	}
	st, ok := rec.lastStatus()
	if !ok || State(st.State) != StateInitialized || st.SlotID != 3 || st.DeviceID != 0x01000201 {
		t.Errorf("status push = %+v, %v", st, ok)
	}
	if err := a.Init(3, nil); !errors.Is(err, ErrAlreadyInitialised) {
		t.Errorf("second Init() error = %v", err)
	}
}

func TestActorInitRejectsBadIdentity(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"index zero", "0x01000200", ErrInvalidIndex},
		{"not hex", "light-one", ErrInvalidProperty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewActor(newFakeDriver(), ActorConfig{})
			err := a.Init(1, map[string]string{"ID": tt.id})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Init() error = %v, want %v", err, tt.wantErr)
			}
			if a.State() != StateUnknown {
				t.Errorf("State() = %s after failed Init", a.State())
			}
		})
	}
}

func TestSetStateTransitionTable(t *testing.T) {
	all := []State{StateUnknown, StateInitialized, StateOffline, StateConnecting, StateOnline, StateWorking, StateError}

	type pair struct{ from, to State }
	valid := map[pair]bool{
		{StateUnknown, StateInitialized}:    true,
		{StateInitialized, StateOffline}:    true,
		{StateInitialized, StateConnecting}: true,
		{StateOffline, StateConnecting}:     true,
		{StateOffline, StateError}:          true,
		{StateConnecting, StateOnline}:      true,
		{StateConnecting, StateOffline}:     true,
		{StateConnecting, StateError}:       true,
		{StateOnline, StateWorking}:         true,
		{StateOnline, StateOffline}:         true,
		{StateOnline, StateError}:           true,
		{StateWorking, StateOnline}:         true,
		{StateWorking, StateOffline}:        true,
		{StateWorking, StateError}:          true,
		{StateError, StateOffline}:          true,
		{StateError, StateInitialized}:      true,
	}

	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				a, rec := newTestActor(t, newFakeDriver(), ActorConfig{})
				forceState(a, from)
				before := len(rec.statuses())

				err := a.SetState(to, 7)

				if CanTransition(from, to) != valid[pair{from, to}] {
					t.Errorf("CanTransition() = %v, want %v", CanTransition(from, to), valid[pair{from, to}])
				}
				if valid[pair{from, to}] {
					if err != nil {
						t.Fatalf("SetState() error = %v", err)
					}
					if a.State() != to {
						t.Errorf("State() = %s, want %s", a.State(), to)
					}
				} else {
					if !errors.Is(err, ErrInvalidTransition) {
						t.Fatalf("SetState() error = %v, want ErrInvalidTransition", err)
					}
					if a.State() != from {
						t.Errorf("State() = %s, want unchanged %s", a.State(), from)
					}
				}

				st := rec.statuses()
				if len(st) != before+1 {
					t.Fatalf("got %d status pushes, want 1", len(st)-before)
				}
				if State(st[len(st)-1].State) != to || st[len(st)-1].ErrorCode != 7 {
					t.Errorf("status push = %+v, want state %s code 7", st[len(st)-1], to)
				}
			})
		}
	}
}

func TestSetStateSameStateIsNoop(t *testing.T) {
	a, rec := newTestActor(t, newFakeDriver(), ActorConfig{})
	before := len(rec.statuses())

	if err := a.SetState(StateInitialized, 0); err != nil {
		t.Errorf("SetState(same) error = %v", err)
	}
	if len(rec.statuses()) != before {
		t.Error("same-state SetState emitted a push")
	}
}

func TestSetStateRejectedWhileStopping(t *testing.T) {
	a, _ := newTestActor(t, newFakeDriver(), ActorConfig{})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	a.Stop()

	if err := a.SetState(StateConnecting, 0); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("SetState() after Stop error = %v, want ErrShuttingDown", err)
	}
	if a.State() != StateOffline {
		t.Errorf("State() = %s, want OFFLINE", a.State())
	}
}

func TestStartMovesToOffline(t *testing.T) {
	a, rec := newTestActor(t, newFakeDriver(), ActorConfig{})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Errorf("second Start() error = %v", err)
	}

	if a.State() != StateOffline {
		t.Errorf("State() = %s, want OFFLINE", a.State())
	}
	st := rec.statuses()
	if len(st) != 2 || State(st[0].State) != StateInitialized || State(st[1].State) != StateOffline {
		t.Errorf("status pushes = %+v, want INITIALIZED then OFFLINE", st)
	}
}

func TestMailboxFIFO(t *testing.T) {
	var mu sync.Mutex
	var got []uint32
	cfg := ActorConfig{OnPacket: func(_ *Actor, pkt protocol.Packet) {
		mu.Lock()
		got = append(got, pkt.Seq())
		mu.Unlock()
	}}

	a, _ := newTestActor(t, newFakeDriver(), cfg)
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	goOnline(t, a)

	for seq := uint32(1); seq <= 50; seq++ {
		pkt := protocol.NewLightLevelReq(uint8(seq))
		pkt.SetSeq(seq)
		if err := a.SubmitPacket(pkt); err != nil {
			t.Fatalf("SubmitPacket() error = %v", err)
		}
	}

	waitFor(t, time.Second, "50 packets", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 50
	})

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		if seq != uint32(i+1) {
			t.Fatalf("packet %d has seq %d, want %d", i, seq, i+1)
		}
	}
}

func TestPacketsDroppedWhileOffline(t *testing.T) {
	var mu sync.Mutex
	delivered := 0
	cfg := ActorConfig{OnPacket: func(*Actor, protocol.Packet) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}}

	drv := newFakeDriver()
	a, _ := newTestActor(t, drv, cfg)
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := a.SubmitPacket(protocol.NewLightLevelReq(75)); err != nil {
		t.Fatalf("SubmitPacket() error = %v", err)
	}
	if err := a.PostEvent("marker"); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}
	<-drv.events

	goOnline(t, a)

	mu.Lock()
	if delivered != 0 {
		t.Errorf("delivered = %d while offline, want 0", delivered)
	}
	mu.Unlock()

	if err := a.SubmitPacket(protocol.NewLightLevelReq(75)); err != nil {
		t.Fatalf("SubmitPacket() error = %v", err)
	}
	if err := a.PostEvent("marker"); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}
	<-drv.events

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Errorf("delivered = %d after going online, want 1", delivered)
	}
}

func TestPacketHandlerPanicIsContained(t *testing.T) {
	cfg := ActorConfig{OnPacket: func(_ *Actor, pkt protocol.Packet) {
		if pkt.Seq() == 1 {
			panic("handler blew up")
		}
	}}
	drv := newFakeDriver()
	a, _ := newTestActor(t, drv, cfg)
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	goOnline(t, a)

	pkt := protocol.NewLightSwitchReq(true)
	pkt.SetSeq(1)
	_ = a.SubmitPacket(pkt)
	_ = a.PostEvent("after")

	select {
	case <-drv.events:
	case <-time.After(time.Second):
		t.Fatal("actor loop stopped after handler panic")
	}
	if !a.IsOnline() {
		t.Errorf("State() = %s after handler panic", a.State())
	}
}

func TestPostConfig(t *testing.T) {
	drv := newFakeDriver()
	a, _ := newTestActor(t, drv, ActorConfig{})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_ = a.PostConfig("Colour", "amber")
	_ = a.PostConfig("Undeclared", "x")
	_ = a.PostEvent("marker")
	<-drv.events

	if got := a.Properties().String("Colour"); got != "amber" {
		t.Errorf("Colour = %q, want amber", got)
	}
	if a.Properties().Has("Undeclared") {
		t.Error("undeclared key was added")
	}
}

func TestStopFromEveryState(t *testing.T) {
	for _, s := range []State{StateUnknown, StateInitialized, StateOffline, StateConnecting, StateOnline, StateWorking, StateError} {
		t.Run(s.String(), func(t *testing.T) {
			drv := newReaderDriver()
			a, rec := newTestActor(t, drv, ActorConfig{})
			if err := a.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			forceState(a, s)

			start := time.Now()
			a.Stop()
			if elapsed := time.Since(start); elapsed > 10*testReadTimeout {
				t.Errorf("Stop() took %v", elapsed)
			}
			if a.State() != StateOffline {
				t.Errorf("State() = %s, want OFFLINE", a.State())
			}
			if s != StateOffline {
				st, _ := rec.lastStatus()
				if State(st.State) != StateOffline {
					t.Errorf("last status = %s, want OFFLINE", State(st.State))
				}
			}
			if err := a.SubmitPacket(protocol.NewSoundStopReq()); !errors.Is(err, ErrShuttingDown) {
				t.Errorf("SubmitPacket() after Stop error = %v", err)
			}
			a.Stop()
		})
	}
}

func TestStopDuringConnect(t *testing.T) {
	drv := newFakeDriver()
	drv.blockUntil = true
	a, _ := newTestActor(t, drv, ActorConfig{AutoConnect: true})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, time.Second, "CONNECTING", func() bool { return a.State() == StateConnecting })

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() blocked during connect")
	}
	if a.State() != StateOffline {
		t.Errorf("State() = %s, want OFFLINE", a.State())
	}
}

func TestReconnectWithBackoff(t *testing.T) {
	drv := newFakeDriver()
	drv.failConnect = 2
	a, rec := newTestActor(t, drv, ActorConfig{
		AutoConnect:          true,
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectInterval: 20 * time.Millisecond,
	})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, 2*time.Second, "ONLINE", a.IsOnline)
	if n := drv.connectCount(); n != 3 {
		t.Errorf("Connect() called %d times, want 3", n)
	}

	var failed int
	for _, st := range rec.statuses() {
		if State(st.State) == StateOffline && st.ErrorCode == ErrCodeConnect {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("saw %d connect failures, want 2", failed)
	}
}

func TestReconnectFromError(t *testing.T) {
	drv := newFakeDriver()
	a, _ := newTestActor(t, drv, ActorConfig{AutoConnect: true, ReconnectInterval: 5 * time.Millisecond})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, time.Second, "ONLINE", a.IsOnline)

	a.ReportError(ErrCodeWrite, errors.New("broken pipe"))

	waitFor(t, time.Second, "second connect", func() bool { return drv.connectCount() == 2 })
	waitFor(t, time.Second, "ONLINE again", a.IsOnline)
}

func TestReaderDeliversRawData(t *testing.T) {
	drv := newReaderDriver()
	a, _ := newTestActor(t, drv, ActorConfig{AutoConnect: true})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, time.Second, "ONLINE", a.IsOnline)

	drv.conn.Inject([]byte{0xFF, 0x01, 0x00, 0x59})
	select {
	case got := <-drv.data:
		if len(got) != 4 || got[3] != 0x59 {
			t.Errorf("OnRawData(%x)", got)
		}
	case <-time.After(time.Second):
		t.Fatal("raw data not delivered")
	}
}

func TestReaderErrorMovesToError(t *testing.T) {
	drv := newReaderDriver()
	a, rec := newTestActor(t, drv, ActorConfig{})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := drv.conn.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	goOnline(t, a)

	drv.conn.SetReadErr(errors.New("connection reset by peer"))

	waitFor(t, time.Second, "ERROR", func() bool { return a.State() == StateError })
	st, _ := rec.lastStatus()
	if State(st.State) != StateError || st.ErrorCode != ErrCodeRead {
		t.Errorf("last status = %+v, want ERROR code %d", st, ErrCodeRead)
	}
	if drv.conn.IsOpen() {
		t.Error("transport still open after read error")
	}
}

func TestReaderExitsAfterTimeoutsWhenOffline(t *testing.T) {
	drv := newReaderDriver()
	a, _ := newTestActor(t, drv, ActorConfig{})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := drv.conn.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	goOnline(t, a)

	waitFor(t, time.Second, "three read timeouts", func() bool { return drv.conn.Timeouts() >= 3 })

	// Store OFFLINE directly so the reader is not cancelled and must notice
	// the state change on its own.
	a.state.Store(uint32(StateOffline))

	exited := make(chan struct{})
	go func() {
		a.readerWG.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(3 * testReadTimeout):
		t.Fatal("reader did not exit within the read timeout bound")
	}
}

func TestEmitStampsPushSequence(t *testing.T) {
	a, rec := newTestActor(t, newFakeDriver(), ActorConfig{})
	a.Emit(protocol.NewSoundPlayEndPush())
	a.Emit(protocol.NewSoundPlayEndPush())

	resp := protocol.NewResultFor(protocol.NewSoundStopReq(), protocol.CodeOK, "")
	a.Emit(resp)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := len(rec.pushes)
	if rec.pushes[n-3].Packet.Seq() >= rec.pushes[n-2].Packet.Seq() {
		t.Error("push sequence did not increase")
	}
	if rec.pushes[n-1].Packet.Seq() != 0 {
		t.Error("response sequence was overwritten")
	}
	if rec.pushes[n-1].Device != a.ID() || rec.pushes[n-1].Slot != 3 {
		t.Errorf("push source = %s/%d", rec.pushes[n-1].Device.Hex(), rec.pushes[n-1].Slot)
	}
}

var _ RawReader = (*readerDriver)(nil)
