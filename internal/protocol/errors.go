package protocol

import "errors"

// Domain errors for the protocol package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrShortBuffer is returned when fewer bytes are available than the
	// header plus the declared payload size.
	ErrShortBuffer = errors.New("protocol: short buffer")

	// ErrBadMagic is returned when a header does not start with Magic.
	ErrBadMagic = errors.New("protocol: bad magic")

	// ErrIDMismatch is returned when decoding bytes whose header id differs
	// from the id of the receiving packet type.
	ErrIDMismatch = errors.New("protocol: packet id mismatch")

	// ErrBodyLength is returned when header.bodyLen does not equal the
	// payload size of the packet type.
	ErrBodyLength = errors.New("protocol: body length mismatch")

	// ErrUnknownPacket is returned when no packet type is registered for an id.
	ErrUnknownPacket = errors.New("protocol: unknown packet id")
)
