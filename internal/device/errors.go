package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrShuttingDown) {
//	    // actor is stopping
//	}
var (
	// ErrInvalidID is returned when a device ID string cannot be parsed.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidIndex is returned when a live device ID has index 0.
	ErrInvalidIndex = errors.New("device: invalid instance index")

	// ErrAlreadyInitialised is returned by Init on an initialised actor.
	ErrAlreadyInitialised = errors.New("device: already initialised")

	// ErrInvalidTransition is returned when a state change violates the table.
	ErrInvalidTransition = errors.New("device: invalid state transition")

	// ErrShuttingDown is returned when an actor is stopping or stopped.
	ErrShuttingDown = errors.New("device: shutting down")

	// ErrNilPacket is returned when submitting a nil packet.
	ErrNilPacket = errors.New("device: nil packet")

	// ErrUnknownProperty is returned when setting an undeclared property.
	ErrUnknownProperty = errors.New("device: unknown property")

	// ErrInvalidProperty is returned when a value does not match its type.
	ErrInvalidProperty = errors.New("device: invalid property value")

	// ErrNotConnected is returned by drivers writing to a closed transport.
	ErrNotConnected = errors.New("device: not connected")

	// ErrUnsupported is returned by drivers for operations the model lacks.
	ErrUnsupported = errors.New("device: operation not supported")

	// ErrInvalidArgument is returned for command arguments outside the
	// model's range.
	ErrInvalidArgument = errors.New("device: invalid argument")
)

// Error codes carried in status pushes.
const (
	// ErrCodeNone means the transition was requested without a fault.
	ErrCodeNone uint32 = 0

	// ErrCodeWrite marks a transport write failure.
	ErrCodeWrite uint32 = 101

	// ErrCodeRead marks a transport read failure.
	ErrCodeRead uint32 = 102

	// ErrCodeConnect marks a failed connection attempt.
	ErrCodeConnect uint32 = 103
)
