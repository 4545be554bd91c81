// Package relay implements the TAS-IO-428R2 relay bank driver.
//
// Channels are driven with Modbus-TCP "write single coil" (function 0x05)
// addressed to unit 0x11. Channel n maps to coil n-1.
package relay

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/drivers/link"
)

// Modbus-TCP framing.
const (
	unitID      byte   = 0x11
	fnWriteCoil byte   = 0x05
	coilOn      uint16 = 0xFF00
	coilOff     uint16 = 0x0000
	pduLength   uint16 = 6
	frameSize          = 12
)

const (
	defaultPort     = "10123"
	defaultChannels = "8"
	connectTimeout  = 500 * time.Millisecond
	propChannels    = "Channels"
)

// TASIO428R2 drives one TAS-IO-428R2.
type TASIO428R2 struct {
	*link.Link

	channels int
}

var _ device.Relay = (*TASIO428R2)(nil)

// New creates a TAS-IO-428R2 driver.
func New(dial link.Dialer) device.Driver {
	return &TASIO428R2{Link: link.New(dial, connectTimeout)}
}

// Declare implements device.Driver.
func (d *TASIO428R2) Declare(p *device.Properties) {
	p.Declare(device.PropType, "Relay", device.PropString, "Device type")
	p.Declare(device.PropPort, defaultPort, device.PropInt, "Modbus-TCP port")
	p.Declare(propChannels, defaultChannels, device.PropInt, "Number of relay channels")
}

// Configure implements device.Driver.
func (d *TASIO428R2) Configure(a *device.Actor) error {
	d.channels = a.Properties().Int(propChannels, 8)
	if d.channels < 1 || d.channels > 0xFFFF {
		return fmt.Errorf("%w: %s=%d", device.ErrInvalidProperty, propChannels, d.channels)
	}
	return d.Bind(a)
}

// Frame builds a Modbus-TCP write-single-coil request.
//
// Parameters:
//   - txn: Transaction identifier echoed by the device
//   - coil: Zero-based coil address
//   - on: Coil value
func Frame(txn, coil uint16, on bool) []byte {
	value := coilOff
	if on {
		value = coilOn
	}
	buf := make([]byte, 0, frameSize)
	buf = binary.BigEndian.AppendUint16(buf, txn)
	buf = binary.BigEndian.AppendUint16(buf, 0) // protocol id
	buf = binary.BigEndian.AppendUint16(buf, pduLength)
	buf = append(buf, unitID, fnWriteCoil)
	buf = binary.BigEndian.AppendUint16(buf, coil)
	buf = binary.BigEndian.AppendUint16(buf, value)
	return buf
}

// SetChannel implements device.Relay. Channels are 1-based.
func (d *TASIO428R2) SetChannel(channel uint8, open bool) error {
	if channel == 0 || int(channel) > d.channels {
		return fmt.Errorf("%w: channel %d of %d", device.ErrInvalidArgument, channel, d.channels)
	}
	// The unit does not check transaction ids.
	return d.Send(Frame(0, uint16(channel-1), open))
}
