// Package supervisor loads device slots, owns the resulting actors and fans
// their pushes in to callbacks and sinks.
//
// Callers address devices by Handle (the slot number) and never hold actor
// pointers. Every actor emits into one bounded channel drained by a single
// goroutine, so callbacks and sinks observe pushes in emission order per
// device and are never invoked concurrently.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/dispatch"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// defaultPushBuffer is the push channel capacity when Config leaves it zero.
const defaultPushBuffer = 256

// Logger defines the logging interface used by the supervisor.
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

// Handle addresses a loaded device. It equals the slot number.
type Handle int

// EventType classifies the pushes delivered to callbacks.
type EventType int

// Event types.
const (
	EventStatusChange EventType = 1
	EventPtzReport    EventType = 2
	EventSoundEnd     EventType = 3
)

func (t EventType) String() string {
	switch t {
	case EventStatusChange:
		return "status_change"
	case EventPtzReport:
		return "ptz_report"
	case EventSoundEnd:
		return "sound_end"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a push decoded for callbacks.
type Event struct {
	Type   EventType
	Handle Handle
	Device device.ID

	// Status is set for EventStatusChange.
	Status protocol.DeviceStatus

	// Position is set for EventPtzReport.
	Position protocol.PtzPosition
}

// Callback receives decoded events on the fan-in goroutine. It must not
// block for long.
type Callback func(Event)

// Sink receives every push, including replies and light status, on the
// fan-in goroutine.
type Sink interface {
	HandlePush(p device.Push)
}

// OverrideStore persists property changes made at runtime.
type OverrideStore interface {
	Load(ctx context.Context, section string) (map[string]string, error)
	Save(ctx context.Context, section, key, value string) error
}

// Config holds supervisor settings.
type Config struct {
	// PushBuffer is the capacity of the push channel. Pushes are dropped
	// when it is full.
	PushBuffer int

	// Actor settings applied to every device.
	ReadTimeout          time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	AutoConnect          bool

	// Rules constrain individual slots, keyed by slot number.
	Rules map[int]Rule

	// Overrides, when set, are merged over slot values before Init and
	// written by SetConfig.
	Overrides OverrideStore
}

type managed struct {
	actor   *device.Actor
	section string
	model   string
}

// Supervisor owns every device actor.
type Supervisor struct {
	registry   *device.Registry
	dispatcher *dispatch.Dispatcher
	cfg        Config
	logger     Logger

	mu      sync.RWMutex
	devices map[Handle]*managed
	stopped bool

	subMu     sync.RWMutex
	callbacks []Callback
	sinks     []Sink

	pushes  chan device.Push
	dropped atomic.Uint64
	seq     atomic.Uint32

	done     chan struct{}
	consumer sync.WaitGroup
	stopOnce sync.Once
}

// New creates a supervisor and starts its fan-in goroutine.
//
// Parameters:
//   - registry: Model names and driver constructors
//   - dispatcher: Packet handlers run by every actor
//   - cfg: Supervisor settings
//
// Returns:
//   - *Supervisor: Ready to Load slots
func New(registry *device.Registry, dispatcher *dispatch.Dispatcher, cfg Config) *Supervisor {
	if cfg.PushBuffer <= 0 {
		cfg.PushBuffer = defaultPushBuffer
	}
	s := &Supervisor{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     noopLogger{},
		devices:    make(map[Handle]*managed),
		pushes:     make(chan device.Push, cfg.PushBuffer),
		done:       make(chan struct{}),
	}
	s.consumer.Add(1)
	go s.consume()
	return s
}

// SetLogger sets the logger. Call before Load; actors keep the logger they
// were created with.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// RegisterCallback adds cb to the callbacks run for status, PTZ and
// sound-end pushes.
func (s *Supervisor) RegisterCallback(cb Callback) {
	if cb == nil {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// AddSink adds a sink that receives every push.
func (s *Supervisor) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Load validates slots and starts an actor for each valid one.
//
// A slot is skipped when it is disabled, lacks Model or ID, names an unknown
// model, carries an ID whose family and model differ from the named model,
// has index 0, has no driver, or fails Init. Skipped mandatory slots are
// logged as errors.
//
// Parameters:
//   - ctx: Bounds override lookups
//   - slots: Slots to load, usually from SlotsFromSections
//
// Returns:
//   - int: Number of actors created
func (s *Supervisor) Load(ctx context.Context, slots []Slot) int {
	created := 0
	for _, slot := range slots {
		rule := s.cfg.Rules[slot.ID]
		err := s.load(ctx, slot, rule)
		switch {
		case err == nil:
			created++
		case rule.Mandatory:
			s.logger.Error("mandatory slot not loaded", "slot", slot.Section, "error", err)
		case errors.Is(err, ErrSlotDisabled):
			s.logger.Debug("slot disabled", "slot", slot.Section)
		default:
			s.logger.Warn("skipping slot", "slot", slot.Section, "error", err)
		}
	}
	s.logger.Info("devices loaded", "created", created, "slots", len(slots))
	return created
}

func (s *Supervisor) load(ctx context.Context, slot Slot, rule Rule) error {
	values := s.withOverrides(ctx, slot)

	if enabled, ok := device.ParseBool(values[device.PropEnable]); !ok || !enabled {
		return ErrSlotDisabled
	}

	model := values[device.PropModel]
	if model == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, device.PropModel)
	}
	if values[device.PropID] == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, device.PropID)
	}

	object, ok := s.registry.ObjectIDForModelName(model)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	if !rule.allows(model) {
		return fmt.Errorf("%w: %q", ErrModelNotAllowed, model)
	}

	id, err := device.ParseID(values[device.PropID])
	if err != nil {
		return err
	}
	if !id.SameModel(object) {
		if actual, ok := s.registry.ModelName(id); ok {
			return fmt.Errorf("%w: %s is a %s, not a %s", ErrModelMismatch, id.Hex(), actual, model)
		}
		return fmt.Errorf("%w: %s is not a %s", ErrModelMismatch, id.Hex(), model)
	}
	if !id.IsLive() {
		return fmt.Errorf("%w: %s", device.ErrInvalidIndex, id.Hex())
	}
	if !s.registry.HasDriver(object) {
		return fmt.Errorf("%w: %q", ErrNoDriver, model)
	}

	h := Handle(slot.ID)
	if err := s.checkFree(h, id); err != nil {
		return err
	}

	drv, _ := s.registry.Create(object)
	actor := device.NewActor(drv, device.ActorConfig{
		ReadTimeout:          s.cfg.ReadTimeout,
		ReconnectInterval:    s.cfg.ReconnectInterval,
		MaxReconnectInterval: s.cfg.MaxReconnectInterval,
		AutoConnect:          s.cfg.AutoConnect,
		OnPacket:             s.dispatcher.Dispatch,
		Emit:                 s.emit,
		Logger:               s.logger,
	})
	if err := actor.Init(slot.ID, values); err != nil {
		return fmt.Errorf("initialising %s: %w", id.Hex(), err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		actor.Stop()
		return ErrStopped
	}
	if _, taken := s.devices[h]; taken {
		s.mu.Unlock()
		actor.Stop()
		return fmt.Errorf("%w: %d", ErrDuplicateSlot, slot.ID)
	}
	s.devices[h] = &managed{actor: actor, section: slot.Section, model: model}
	s.mu.Unlock()

	if err := actor.Start(); err != nil {
		s.mu.Lock()
		delete(s.devices, h)
		s.mu.Unlock()
		return fmt.Errorf("starting %s: %w", id.Hex(), err)
	}

	s.logger.Info("device loaded", "slot", slot.Section, "device", id, "model", model)
	return nil
}

func (s *Supervisor) withOverrides(ctx context.Context, slot Slot) map[string]string {
	values := maps.Clone(slot.Values)
	if values == nil {
		values = make(map[string]string)
	}
	if s.cfg.Overrides == nil {
		return values
	}
	overrides, err := s.cfg.Overrides.Load(ctx, slot.Section)
	if err != nil {
		s.logger.Warn("loading property overrides failed", "slot", slot.Section, "error", err)
		return values
	}
	for _, k := range []string{device.PropID, device.PropModel, device.PropType} {
		if _, ok := overrides[k]; ok {
			s.logger.Warn("ignoring override of identity key", "slot", slot.Section, "key", k)
			delete(overrides, k)
		}
	}
	maps.Copy(values, overrides)
	return values
}

func (s *Supervisor) checkFree(h Handle, id device.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, taken := s.devices[h]; taken {
		return fmt.Errorf("%w: %d", ErrDuplicateSlot, int(h))
	}
	for _, m := range s.devices {
		if m.actor.ID() == id {
			return fmt.Errorf("%w: %s", ErrDuplicateDevice, id.Hex())
		}
	}
	return nil
}

// emit is the push callback of every actor. It never blocks.
func (s *Supervisor) emit(p device.Push) {
	select {
	case s.pushes <- p:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("push channel full, dropping push",
			"device", p.Device, "packet", p.Packet.Name(), "dropped", n)
	}
}

// consume drains the push channel until Stop, then delivers what is left.
func (s *Supervisor) consume() {
	defer s.consumer.Done()
	for {
		select {
		case p := <-s.pushes:
			s.deliver(p)
		case <-s.done:
			for {
				select {
				case p := <-s.pushes:
					s.deliver(p)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) deliver(p device.Push) {
	s.subMu.RLock()
	callbacks := s.callbacks
	sinks := s.sinks
	s.subMu.RUnlock()

	if ev, ok := eventFor(p); ok {
		for _, cb := range callbacks {
			s.safeCall("callback", func() { cb(ev) })
		}
	}
	for _, sink := range sinks {
		s.safeCall("sink", func() { sink.HandlePush(p) })
	}
}

func (s *Supervisor) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in push "+what, "panic", r)
		}
	}()
	fn()
}

// eventFor decodes the pushes that callbacks understand.
func eventFor(p device.Push) (Event, bool) {
	ev := Event{Handle: Handle(p.Slot), Device: p.Device}
	switch m := p.Packet.(type) {
	case *protocol.Message[protocol.DeviceStatus]:
		if m.ID() != protocol.IDDeviceStatusPush {
			return ev, false
		}
		ev.Type = EventStatusChange
		ev.Status = m.Body
	case *protocol.Message[protocol.PtzPosition]:
		if m.ID() != protocol.IDPtzPositionPush {
			return ev, false
		}
		ev.Type = EventPtzReport
		ev.Position = m.Body
	case *protocol.Message[protocol.Empty]:
		if m.ID() != protocol.IDSoundPlayEndPush {
			return ev, false
		}
		ev.Type = EventSoundEnd
	default:
		return ev, false
	}
	return ev, true
}

// Dropped returns the number of pushes discarded because the channel was full.
func (s *Supervisor) Dropped() uint64 { return s.dropped.Load() }

// Len returns the number of loaded devices.
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Handles returns the loaded handles in ascending order.
func (s *Supervisor) Handles() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handles := make([]Handle, 0, len(s.devices))
	for h := range s.devices {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// HandleFor returns the handle of the device with identity id.
func (s *Supervisor) HandleFor(id device.ID) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for h, m := range s.devices {
		if m.actor.ID() == id {
			return h, true
		}
	}
	return 0, false
}

// FindByFamily returns the lowest handle whose device belongs to family.
func (s *Supervisor) FindByFamily(family protocol.Family) (Handle, bool) {
	for _, h := range s.Handles() {
		m, err := s.lookup(h)
		if err == nil && m.actor.ID().Family() == family {
			return h, true
		}
	}
	return 0, false
}

// IsOnline reports whether h is loaded and ONLINE or WORKING.
func (s *Supervisor) IsOnline(h Handle) bool {
	m, err := s.lookup(h)
	return err == nil && m.actor.IsOnline()
}

// Info describes a loaded device.
type Info struct {
	Handle  Handle `json:"handle"`
	ID      string `json:"id"`
	Family  string `json:"family"`
	Model   string `json:"model"`
	Name    string `json:"name"`
	Section string `json:"section"`
	State   string `json:"state"`
	Online  bool   `json:"online"`
	Queued  int    `json:"queued"`
}

// Device returns a description of h.
func (s *Supervisor) Device(h Handle) (Info, error) {
	m, err := s.lookup(h)
	if err != nil {
		return Info{}, err
	}
	return info(h, m), nil
}

// Devices describes every loaded device, ordered by handle.
func (s *Supervisor) Devices() []Info {
	handles := s.Handles()
	out := make([]Info, 0, len(handles))
	for _, h := range handles {
		if m, err := s.lookup(h); err == nil {
			out = append(out, info(h, m))
		}
	}
	return out
}

func info(h Handle, m *managed) Info {
	a := m.actor
	return Info{
		Handle:  h,
		ID:      a.ID().Hex(),
		Family:  a.ID().Family().String(),
		Model:   m.model,
		Name:    a.Name(),
		Section: m.section,
		State:   a.State().String(),
		Online:  a.IsOnline(),
		Queued:  a.Pending(),
	}
}

// Submit queues a raw packet for h. The actor drops it unless the device is
// online when the packet is dequeued.
func (s *Supervisor) Submit(h Handle, pkt protocol.Packet) error {
	m, err := s.lookup(h)
	if err != nil {
		return err
	}
	if err := m.actor.SubmitPacket(pkt); err != nil {
		return fmt.Errorf("submitting to %s: %w", m.actor.ID(), err)
	}
	return nil
}

// Reconnect queues an immediate connection attempt for h.
func (s *Supervisor) Reconnect(h Handle) error {
	m, err := s.lookup(h)
	if err != nil {
		return err
	}
	return m.actor.Reconnect()
}

// Stop stops every actor, leaving each OFFLINE, then delivers the remaining
// pushes and ends the fan-in goroutine. Handles stay readable afterwards.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		actors := make([]*device.Actor, 0, len(s.devices))
		for _, m := range s.devices {
			actors = append(actors, m.actor)
		}
		s.mu.Unlock()

		var wg sync.WaitGroup
		for _, a := range actors {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.Stop()
			}()
		}
		wg.Wait()

		close(s.done)
		s.consumer.Wait()
		s.logger.Info("supervisor stopped", "devices", len(actors), "dropped_pushes", s.dropped.Load())
	})
}

func (s *Supervisor) lookup(h Handle) (*managed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.devices[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrDeviceNotFound, int(h))
	}
	return m, nil
}
