package supervisor

import (
	"errors"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Domain errors for the supervisor package.
var (
	// ErrDeviceNotFound is returned when no actor owns the handle.
	ErrDeviceNotFound = errors.New("supervisor: device not found")

	// ErrWrongFamily is returned when a command targets a device of another
	// family.
	ErrWrongFamily = errors.New("supervisor: command not supported by device family")

	// ErrOffline is returned when a command targets a device that is not
	// ONLINE or WORKING.
	ErrOffline = errors.New("supervisor: device offline")

	// ErrUnknownOp is returned for an unrecognised command op.
	ErrUnknownOp = errors.New("supervisor: unknown command op")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("supervisor: stopped")
)

// Slot validation errors. Each causes one slot to be skipped.
var (
	ErrSlotDisabled    = errors.New("supervisor: slot disabled")
	ErrMissingKey      = errors.New("supervisor: missing required key")
	ErrUnknownModel    = errors.New("supervisor: unknown model")
	ErrModelMismatch   = errors.New("supervisor: id does not match model")
	ErrModelNotAllowed = errors.New("supervisor: model not allowed in slot")
	ErrNoDriver        = errors.New("supervisor: no driver for model")
	ErrDuplicateSlot   = errors.New("supervisor: duplicate slot")
	ErrDuplicateDevice = errors.New("supervisor: device id already loaded")
)

// CodeOf maps an error from the command surface to a wire result code.
func CodeOf(err error) protocol.Code {
	switch {
	case err == nil:
		return protocol.CodeOK
	case errors.Is(err, ErrDeviceNotFound):
		return protocol.CodeDeviceNotFound
	case errors.Is(err, ErrWrongFamily):
		return protocol.CodeDeviceNotSupported
	case errors.Is(err, ErrOffline):
		return protocol.CodeDeviceDisconnected
	case errors.Is(err, ErrStopped), errors.Is(err, device.ErrShuttingDown):
		return protocol.CodeNotInitialized
	case errors.Is(err, device.ErrUnsupported):
		return protocol.CodeUnsupported
	case errors.Is(err, ErrUnknownOp),
		errors.Is(err, device.ErrInvalidArgument),
		errors.Is(err, device.ErrInvalidProperty),
		errors.Is(err, device.ErrUnknownProperty):
		return protocol.CodeInvalidArgument
	default:
		return protocol.CodeFailure
	}
}
