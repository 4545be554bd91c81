package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/transport"
)

// Actor defaults.
const (
	defaultReadTimeout          = 500 * time.Millisecond
	defaultReconnectInterval    = 2 * time.Second
	defaultMaxReconnectInterval = 2 * time.Minute
	reconnectBackoffFactor      = 1.5
	readBufferSize              = 4096
)

// Base property keys declared for every device.
const (
	PropTransform = "Transform"
	PropIP        = "IP"
	PropPort      = "Port"
	PropBaud      = "Baud"
	PropName      = "Name"
	PropType      = "Type"
	PropModel     = "Model"
	PropID        = "ID"
	PropEnable    = "Enable"
)

// Push is a packet emitted by a device toward callers: status changes,
// telemetry and replies to requests.
type Push struct {
	Device ID
	Slot   int
	Packet protocol.Packet
}

// PacketHandler handles a packet admitted by the actor loop.
type PacketHandler func(a *Actor, pkt protocol.Packet)

// ActorConfig holds the runtime settings of an actor.
type ActorConfig struct {
	// ReadTimeout bounds each background read. Shutdown is observed within
	// one interval.
	ReadTimeout time.Duration

	// ReconnectInterval is the first retry delay after a failed connect.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the retry delay.
	MaxReconnectInterval time.Duration

	// AutoConnect enables the connect/reconnect loop.
	AutoConnect bool

	// OnPacket receives packets while the device is online.
	OnPacket PacketHandler

	// Emit receives every push. It must not block.
	Emit func(Push)

	Logger Logger
}

// Actor owns one device: identity, properties, mailbox, connection state and
// driver. All driver calls except RawReader run on the actor goroutine.
type Actor struct {
	driver Driver
	props  *Properties
	cfg    ActorConfig
	logger Logger

	// Set by Init before Start; read-only afterwards.
	id   ID
	slot int

	// mu serialises transitions. The fsm enforces the table and runs the
	// exit and enter hooks.
	mu          sync.Mutex
	machine     *fsm.FSM
	state       atomic.Uint32
	pendingCode uint32

	stopping atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once

	mailbox *mailbox
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	readerMu     sync.Mutex
	readerCancel context.CancelFunc
	readerWG     sync.WaitGroup

	connectMu    sync.Mutex
	connectTimer *time.Timer
	attempts     int
	backoff      time.Duration
	inConnect    atomic.Bool

	pushSeq atomic.Uint32
}

// NewActor wraps driver in a new, uninitialised actor.
//
// Parameters:
//   - driver: Model-specific implementation
//   - cfg: Runtime settings; zero durations use package defaults
//
// Returns:
//   - *Actor: Actor in state UNKNOWN
func NewActor(driver Driver, cfg ActorConfig) *Actor {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = defaultMaxReconnectInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		driver:  driver,
		props:   NewProperties(),
		cfg:     cfg,
		logger:  logger,
		id:      InvalidID,
		mailbox: newMailbox(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	a.machine = newMachine(StateUnknown, fsm.Callbacks{
		"leave_state": func(_ context.Context, e *fsm.Event) {
			a.onExit(stateFromName(e.Src))
		},
		"enter_state": func(_ context.Context, e *fsm.Event) {
			a.onEnter(stateFromName(e.Src), stateFromName(e.Dst))
		},
	})
	return a
}

// Init declares properties, merges cfg, parses the identity and configures
// the driver.
//
// Parameters:
//   - slot: Configuration slot number, used in status pushes
//   - cfg: Slot key/value pairs; undeclared keys are ignored
//
// Returns:
//   - error: ErrInvalidID, ErrInvalidIndex, ErrInvalidProperty, a driver
//     error, or ErrAlreadyInitialised
func (a *Actor) Init(slot int, cfg map[string]string) error {
	if a.State() != StateUnknown {
		return ErrAlreadyInitialised
	}

	declareBase(a.props)
	a.driver.Declare(a.props)

	ignored, err := a.props.Import(cfg)
	if err != nil {
		return fmt.Errorf("importing slot %d config: %w", slot, err)
	}
	if len(ignored) > 0 {
		a.logger.Debug("ignoring undeclared config keys", "slot", slot, "keys", ignored)
	}

	id, err := ParseID(a.props.String(PropID))
	if err != nil {
		return err
	}
	if !id.IsLive() {
		return fmt.Errorf("%w: %s", ErrInvalidIndex, id.Hex())
	}
	a.id = id
	a.slot = slot
	a.props.Seal()

	if err := a.driver.Configure(a); err != nil {
		return fmt.Errorf("configuring %s: %w", id, err)
	}

	return a.SetState(StateInitialized, ErrCodeNone)
}

func declareBase(p *Properties) {
	p.Declare(PropTransform, "1", PropInt, "Transport kind")
	p.Declare(PropIP, "127.0.0.1", PropString, "Device address")
	p.Declare(PropPort, "8000", PropInt, "Device port")
	p.Declare(PropBaud, "115200", PropInt, "Serial baud rate")
	p.Declare(PropName, "Unnamed", PropString, "Device name")
	p.Declare(PropType, "", PropString, "Device type")
	p.Declare(PropModel, "Unnamed", PropString, "Device model")
	p.Declare(PropID, "0x00000000", PropHex, "Device identity")
	p.Declare(PropEnable, "false", PropBool, "Slot enabled")
	p.MarkReadOnly(PropID, PropModel, PropType)
}

// Start begins the actor loop and moves an initialised device OFFLINE, from
// where the connect loop takes over. Calling Start again is a no-op.
func (a *Actor) Start() error {
	if a.stopping.Load() {
		return ErrShuttingDown
	}
	if !a.started.CompareAndSwap(false, true) {
		return nil
	}

	go a.run()

	if a.State() == StateInitialized {
		return a.SetState(StateOffline, ErrCodeNone)
	}
	return nil
}

// Stop shuts the actor down and leaves it OFFLINE with the transport closed.
// It returns within one read timeout. Calling Stop again is a no-op.
func (a *Actor) Stop() {
	a.stopOnce.Do(a.shutdown)
}

func (a *Actor) shutdown() {
	a.stopping.Store(true)
	a.cancel()
	a.cancelConnect()

	if n := a.mailbox.close(); n > 0 {
		a.logger.Debug("discarding queued events on stop", "device", a.id, "count", n)
	}
	if a.started.Load() {
		<-a.done
	}

	a.forceOffline()
	a.readerWG.Wait()
	a.safeCall("disconnect", a.driver.Disconnect)

	a.logger.Info("device stopped", "device", a.id, "slot", a.slot)
}

// forceOffline stores OFFLINE regardless of the transition table.
func (a *Actor) forceOffline() {
	a.mu.Lock()
	defer a.mu.Unlock()

	from := a.State()
	if from == StateOffline {
		return
	}
	a.onExit(from)
	a.machine.SetState(StateOffline.String())
	a.pendingCode = ErrCodeNone
	a.onEnter(from, StateOffline)
}

// SetState requests a state change.
//
// While stopping, only OFFLINE is accepted. A transition missing from the
// table keeps the stored state and emits a status push carrying the
// attempted state and code. A same-state request is a no-op.
//
// Parameters:
//   - to: Target state
//   - code: Error code reported in the status push
//
// Returns:
//   - error: ErrShuttingDown or ErrInvalidTransition when rejected
func (a *Actor) SetState(to State, code uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopping.Load() && to != StateOffline {
		a.logger.Warn("state change rejected while stopping", "device", a.id, "state", to)
		return ErrShuttingDown
	}

	from := a.State()
	if from == to {
		return nil
	}

	if !a.machine.Can(eventName(to)) {
		a.logger.Warn("invalid state transition", "device", a.id, "from", from, "to", to, "code", code)
		a.emitStatus(to, code)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	a.pendingCode = code
	if err := a.machine.Event(context.Background(), eventName(to)); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	return nil
}

func (a *Actor) onExit(from State) {
	a.logger.Debug("leaving state", "device", a.id, "state", from)
}

func (a *Actor) onEnter(from, to State) {
	a.state.Store(uint32(to))

	switch to {
	case StateOnline:
		if from != StateWorking {
			a.startReader()
		}
	case StateOffline, StateError:
		a.stopReader()
		a.safeCall("disconnect", a.driver.Disconnect)
		a.scheduleConnect()
	}

	a.logger.Info("device state changed", "device", a.id, "from", from, "to", to, "code", a.pendingCode)
	a.emitStatus(to, a.pendingCode)
}

// State returns the stored state.
func (a *Actor) State() State { return State(a.state.Load()) }

// IsOnline reports whether the device is ONLINE or WORKING.
func (a *Actor) IsOnline() bool { return a.State().IsOnline() }

// ID returns the device identity, or InvalidID before Init.
func (a *Actor) ID() ID { return a.id }

// Slot returns the configuration slot number.
func (a *Actor) Slot() int { return a.slot }

// Name returns the configured device name.
func (a *Actor) Name() string { return a.props.String(PropName) }

// Properties returns the property table.
func (a *Actor) Properties() *Properties { return a.props }

// Driver returns the model-specific implementation.
func (a *Actor) Driver() Driver { return a.driver }

// Logger returns the actor's logger for use by drivers.
func (a *Actor) Logger() Logger { return a.logger }

// SubmitPacket queues pkt for the actor loop. It never blocks.
func (a *Actor) SubmitPacket(pkt protocol.Packet) error {
	if pkt == nil {
		return ErrNilPacket
	}
	return a.post(Event{Kind: EventPacket, Packet: pkt})
}

// PostConfig queues a property update.
func (a *Actor) PostConfig(key, value string) error {
	return a.post(Event{Kind: EventConfig, Key: key, Value: value})
}

// PostEvent queues a custom event for the driver's EventHandler.
func (a *Actor) PostEvent(name string) error {
	return a.post(Event{Kind: EventCustom, Name: name})
}

// Reconnect queues an immediate connection attempt.
func (a *Actor) Reconnect() error {
	return a.post(Event{Kind: eventConnect})
}

// Pending returns the number of queued mailbox events.
func (a *Actor) Pending() int { return a.mailbox.len() }

func (a *Actor) post(e Event) error {
	if a.stopping.Load() || !a.mailbox.post(e) {
		return ErrShuttingDown
	}
	return nil
}

// Emit sends a push toward callers. One-way pushes without a sequence number
// are stamped from a per-device counter.
func (a *Actor) Emit(pkt protocol.Packet) {
	if pkt.ID().Category() == protocol.CategoryOneWay && pkt.Seq() == 0 {
		pkt.SetSeq(a.pushSeq.Add(1))
	}
	if a.cfg.Emit != nil {
		a.cfg.Emit(Push{Device: a.id, Slot: a.slot, Packet: pkt})
	}
}

// ReportError moves the device to ERROR after a transport fault. The enter
// hook closes the transport and the connect loop retries.
func (a *Actor) ReportError(code uint32, err error) {
	a.logger.Error("device fault", "device", a.id, "code", code, "error", err)
	_ = a.SetState(StateError, code)
}

func (a *Actor) emitStatus(state State, code uint32) {
	a.Emit(protocol.NewDeviceStatusPush(protocol.DeviceStatus{
		DeviceID:  uint32(a.id),
		SlotID:    uint8(a.slot),
		State:     uint8(state),
		ErrorCode: code,
	}))
}

// run is the actor loop.
func (a *Actor) run() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.mailbox.notify:
		}

		for {
			if a.ctx.Err() != nil {
				return
			}
			e, ok := a.mailbox.pop()
			if !ok {
				break
			}
			a.handle(e)
		}
	}
}

func (a *Actor) handle(e Event) {
	switch e.Kind {
	case EventPacket:
		if !a.IsOnline() {
			a.logger.Warn("dropping packet, device not online",
				"device", a.id, "packet", e.Packet.Name(), "state", a.State())
			return
		}
		if a.cfg.OnPacket == nil {
			a.logger.Debug("no packet handler", "device", a.id, "packet", e.Packet.Name())
			return
		}
		a.safeCall("packet "+e.Packet.Name(), func() { a.cfg.OnPacket(a, e.Packet) })

	case EventConfig:
		if err := a.props.Set(e.Key, e.Value); err != nil {
			a.logger.Warn("config update rejected", "device", a.id, "key", e.Key, "error", err)
			return
		}
		if h, ok := a.driver.(ConfigHandler); ok {
			a.safeCall("config "+e.Key, func() { h.ConfigChanged(e.Key, e.Value) })
		}

	case EventCustom:
		h, ok := a.driver.(EventHandler)
		if !ok {
			a.logger.Debug("driver has no event handler", "device", a.id, "event", e.Name)
			return
		}
		a.safeCall("event "+e.Name, func() { h.HandleEvent(e.Name) })

	case eventConnect:
		a.connect()
	}
}

// safeCall runs fn, converting a panic into a log entry.
func (a *Actor) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("recovered panic in device", "device", a.id, "call", what, "panic", r)
		}
	}()
	fn()
}

// connect runs one connection attempt from INITIALIZED, OFFLINE or ERROR.
func (a *Actor) connect() {
	a.inConnect.Store(true)
	defer a.inConnect.Store(false)

	if a.State() == StateError {
		if err := a.SetState(StateOffline, ErrCodeNone); err != nil {
			return
		}
	}
	if s := a.State(); s != StateInitialized && s != StateOffline {
		return
	}
	if err := a.SetState(StateConnecting, ErrCodeNone); err != nil {
		return
	}

	var err error
	a.safeCall("connect", func() { err = a.driver.Connect(a.ctx) })
	if err == nil && a.ctx.Err() != nil {
		err = a.ctx.Err()
	}
	if err != nil {
		delay := a.nextBackoff()
		a.logger.Warn("device connect failed", "device", a.id, "error", err, "retry_in", delay)
		_ = a.SetState(StateOffline, ErrCodeConnect)
		a.inConnect.Store(false)
		a.scheduleConnect()
		return
	}

	a.resetBackoff()
	_ = a.SetState(StateOnline, ErrCodeNone)
}

// nextBackoff records a failed attempt and returns the next retry delay.
func (a *Actor) nextBackoff() time.Duration {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	if a.attempts == 0 {
		a.backoff = a.cfg.ReconnectInterval
	} else {
		a.backoff = time.Duration(float64(a.backoff) * reconnectBackoffFactor)
		if a.backoff > a.cfg.MaxReconnectInterval {
			a.backoff = a.cfg.MaxReconnectInterval
		}
	}
	a.attempts++
	return a.backoff
}

func (a *Actor) resetBackoff() {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()
	a.attempts = 0
	a.backoff = 0
}

// scheduleConnect posts a connect event after the current backoff. At most
// one attempt is pending at a time.
func (a *Actor) scheduleConnect() {
	if !a.cfg.AutoConnect || a.stopping.Load() || a.inConnect.Load() {
		return
	}

	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	if a.connectTimer != nil {
		return
	}
	delay := time.Duration(0)
	if a.attempts > 0 {
		delay = a.backoff
	}
	a.connectTimer = time.AfterFunc(delay, func() {
		a.connectMu.Lock()
		a.connectTimer = nil
		a.connectMu.Unlock()
		_ = a.post(Event{Kind: eventConnect})
	})
}

func (a *Actor) cancelConnect() {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()
	if a.connectTimer != nil {
		a.connectTimer.Stop()
		a.connectTimer = nil
	}
}

func (a *Actor) startReader() {
	r, ok := a.driver.(RawReader)
	if !ok {
		return
	}

	a.readerMu.Lock()
	defer a.readerMu.Unlock()
	if a.readerCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.readerCancel = cancel
	a.readerWG.Add(1)
	go a.readLoop(ctx, r)
}

// stopReader cancels the reader without waiting for it.
func (a *Actor) stopReader() {
	a.readerMu.Lock()
	defer a.readerMu.Unlock()
	if a.readerCancel != nil {
		a.readerCancel()
		a.readerCancel = nil
	}
}

// readLoop reads while the device is online. Timeouts are normal; any other
// read error moves the device to ERROR.
func (a *Actor) readLoop(ctx context.Context, r RawReader) {
	defer a.readerWG.Done()

	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil && a.IsOnline() {
		n, err := r.ReadRaw(buf, a.cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil || a.stopping.Load() || !a.IsOnline() {
				return
			}
			a.ReportError(ErrCodeRead, err)
			return
		}
		if n > 0 {
			a.safeCall("raw data", func() { r.OnRawData(buf[:n]) })
		}
	}
}
