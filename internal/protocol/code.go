package protocol

import "fmt"

// Code is a result code carried in Result payloads and returned by the
// caller-facing command surface.
type Code uint32

// Result codes. The numeric values match existing callers.
const (
	CodeOK                 Code = 0
	CodeFailure            Code = 1
	CodeInvalidArgument    Code = 2
	CodeNotInitialized     Code = 3
	CodeUnsupported        Code = 5
	CodeDeviceNotFound     Code = 1001
	CodeDeviceNotSupported Code = 1003
	CodeDeviceDisconnected Code = 1005
)

// String returns a short description of the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeFailure:
		return "failure"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeNotInitialized:
		return "not initialised"
	case CodeUnsupported:
		return "unsupported operation"
	case CodeDeviceNotFound:
		return "device not found"
	case CodeDeviceNotSupported:
		return "device not supported"
	case CodeDeviceDisconnected:
		return "device disconnected"
	default:
		return fmt.Sprintf("code %d", uint32(c))
	}
}
