package device

import (
	"context"
	"time"

	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Driver is the family- and model-specific half of a device.
//
// All Driver methods are called from the owning actor's goroutine.
type Driver interface {
	// Declare adds driver-specific properties and may override base defaults.
	Declare(p *Properties)

	// Configure is called once at the end of Init, after properties are
	// merged. Drivers keep the actor to emit pushes and report faults.
	Configure(a *Actor) error

	// Connect opens the transport. ctx is cancelled when the actor stops.
	Connect(ctx context.Context) error

	// Disconnect closes the transport. It must be idempotent.
	Disconnect()
}

// RawReader is implemented by drivers that receive unsolicited data. The
// actor runs a reader goroutine while the device is online.
type RawReader interface {
	// ReadRaw reads from the transport, returning transport.ErrTimeout when
	// nothing arrived within timeout.
	ReadRaw(buf []byte, timeout time.Duration) (int, error)

	// OnRawData handles bytes read by ReadRaw.
	OnRawData(data []byte)
}

// EventHandler is implemented by drivers that post custom mailbox events.
type EventHandler interface {
	HandleEvent(name string)
}

// ConfigHandler is implemented by drivers that react to property updates.
type ConfigHandler interface {
	ConfigChanged(key, value string)
}

// Light is the capability of dimmable lights.
type Light interface {
	SetSwitch(on bool) error
	SetLevel(level uint8) error
	SetStrobe(on bool) error
	LightStatus() protocol.LightStatus
}

// PTZ is the capability of pan-tilt-zoom units.
type PTZ interface {
	Move(action, speed uint8) error
	Halt() error
	Preset(action, index uint8) error
	Position() protocol.PtzPosition
}

// Sound is the capability of network speakers.
type Sound interface {
	Play(filename string, loop bool) error
	StopPlay() error
	Speak(text string) error
	SetMic(on bool) error
	SetVolume(volume uint8) error
}

// Relay is the capability of relay banks.
type Relay interface {
	SetChannel(channel uint8, open bool) error
}
