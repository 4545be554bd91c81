package gateway

import "errors"

var (
	// ErrShortFrame is returned when a frame body is too small to carry a device id.
	ErrShortFrame = errors.New("gateway: frame shorter than device id")

	// ErrUnknownDevice is returned when a frame addresses an id no slot owns.
	ErrUnknownDevice = errors.New("gateway: unknown device")

	// ErrServerClosed is returned by Start after Close.
	ErrServerClosed = errors.New("gateway: server closed")
)
