// Package dispatch routes packets admitted by a device actor to the driver
// capability that serves them.
//
// Handlers are registered per packet id. Each handler narrows the actor's
// driver to the capability interface it needs and replies with a response
// packet carrying the request's sequence number.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Logger defines the logging interface used by the dispatcher.
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

// ErrWrongPayload is returned when a handler receives a packet whose payload
// type differs from the one it was registered for.
var ErrWrongPayload = errors.New("dispatch: wrong payload type")

// ErrCapability is returned when the target driver lacks the capability a
// handler needs.
var ErrCapability = errors.New("dispatch: capability not implemented")

// Handler processes one packet for one actor.
type Handler func(a *device.Actor, pkt protocol.Packet) error

type entry struct {
	name string
	fn   Handler
}

// Dispatcher is a table from packet id to handler.
//
// It is populated once at startup and read-only afterwards, so Dispatch may
// be called from every actor goroutine without locking.
type Dispatcher struct {
	handlers map[protocol.ID]entry
	logger   Logger
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[protocol.ID]entry),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Register associates a handler with a packet id. Registering an id twice is
// a programming error and panics.
func (d *Dispatcher) Register(id protocol.ID, name string, fn Handler) {
	if fn == nil {
		panic(fmt.Sprintf("dispatch: nil handler for %s", name))
	}
	if prev, ok := d.handlers[id]; ok {
		panic(fmt.Sprintf("dispatch: packet id %s registered twice (%s, %s)", id, prev.name, name))
	}
	d.handlers[id] = entry{name: name, fn: fn}
}

// Handle registers a handler for packets carrying a T payload.
//
// Parameters:
//   - d: Dispatcher to register with
//   - id: Request packet id
//   - name: Handler name used in logs
//   - fn: Receives the typed message
func Handle[T any](d *Dispatcher, id protocol.ID, name string, fn func(a *device.Actor, m *protocol.Message[T]) error) {
	d.Register(id, name, func(a *device.Actor, pkt protocol.Packet) error {
		m, ok := pkt.(*protocol.Message[T])
		if !ok {
			return fmt.Errorf("%w: %s carries %T", ErrWrongPayload, pkt.Name(), pkt.Payload())
		}
		return fn(a, m)
	})
}

// Has reports whether a handler is registered for id.
func (d *Dispatcher) Has(id protocol.ID) bool {
	_, ok := d.handlers[id]
	return ok
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int { return len(d.handlers) }

// Dispatch runs the handler registered for pkt.
//
// Unknown ids are logged and ignored. Handler errors and panics are logged
// with the packet id and never propagate to the caller.
//
// Parameters:
//   - a: Target actor
//   - pkt: Packet admitted by the actor loop
func (d *Dispatcher) Dispatch(a *device.Actor, pkt protocol.Packet) {
	e, ok := d.handlers[pkt.ID()]
	if !ok {
		d.logger.Warn("unhandled packet id", "id", pkt.ID(), "packet", pkt.Name(), "device", a.ID())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered panic in packet handler",
				"id", pkt.ID(), "handler", e.name, "device", a.ID(), "panic", r)
		}
	}()

	if err := e.fn(a, pkt); err != nil {
		d.logger.Warn("packet handler failed",
			"id", pkt.ID(), "handler", e.name, "device", a.ID(), "error", err)
	}
}

// CodeOf maps a driver error to a result code.
func CodeOf(err error) protocol.Code {
	switch {
	case err == nil:
		return protocol.CodeOK
	case errors.Is(err, ErrCapability):
		return protocol.CodeDeviceNotSupported
	case errors.Is(err, device.ErrUnsupported):
		return protocol.CodeUnsupported
	case errors.Is(err, device.ErrNotConnected):
		return protocol.CodeDeviceDisconnected
	case errors.Is(err, device.ErrInvalidProperty), errors.Is(err, device.ErrInvalidArgument):
		return protocol.CodeInvalidArgument
	default:
		return protocol.CodeFailure
	}
}

// reply emits the Result for req and passes err through for logging.
func reply(a *device.Actor, req protocol.Packet, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Emit(protocol.NewResultFor(req, CodeOf(err), msg))
	return err
}
