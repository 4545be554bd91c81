package fanout

import "errors"

// Domain errors for the fanout package.
var (
	// ErrBadTopic is returned for a command topic without a device id.
	ErrBadTopic = errors.New("fanout: malformed command topic")

	// ErrBadPayload is returned when a command body is not valid JSON.
	ErrBadPayload = errors.New("fanout: malformed command payload")

	// ErrUnknownDevice is returned when no loaded device has the command's id.
	ErrUnknownDevice = errors.New("fanout: unknown device")
)
