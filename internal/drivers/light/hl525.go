// Package light implements the HL-525-4W dimmable light driver.
//
// The light speaks a fixed 7-byte command frame over TCP:
//
//	FF 01 00 <cmd> <vh> <vl> <sum>
//
// where sum is the low byte of bytes 1..5. The unit address is always 0x01.
package light

import (
	"sync"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/drivers/link"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// HL-525 command bytes.
const (
	cmdOn        byte = 0x1F
	cmdOff       byte = 0x2F
	cmdStrobeOn  byte = 0x3F
	cmdStrobeOff byte = 0x4F
	cmdCurrent   byte = 0x9F
)

const (
	frameHeader    byte = 0xFF
	unitAddress    byte = 0x01
	frameSize           = 7
	connectTimeout      = 500 * time.Millisecond

	// strobeFrequency is reported while strobing; the unit has one fixed rate.
	strobeFrequency uint8 = 1
)

// HL525 drives one HL-525-4W light.
type HL525 struct {
	*link.Link

	mu     sync.Mutex
	status protocol.LightStatus
}

var _ device.Light = (*HL525)(nil)

// New creates an HL-525 driver.
func New(dial link.Dialer) device.Driver {
	return &HL525{Link: link.New(dial, connectTimeout)}
}

// Declare implements device.Driver.
func (d *HL525) Declare(p *device.Properties) {
	p.Declare(device.PropType, "Light", device.PropString, "Device type")
}

// Configure implements device.Driver.
func (d *HL525) Configure(a *device.Actor) error {
	return d.Bind(a)
}

// Frame builds one HL-525 command frame.
func Frame(cmd, vh, vl byte) []byte {
	buf := make([]byte, frameSize)
	buf[0] = frameHeader
	buf[1] = unitAddress
	buf[3] = cmd
	buf[4] = vh
	buf[5] = vl

	var sum uint32
	for _, b := range buf[1:6] {
		sum += uint32(b)
	}
	buf[6] = byte(sum & 0xFF)
	return buf
}

// SetSwitch implements device.Light.
func (d *HL525) SetSwitch(on bool) error {
	cmd := cmdOff
	if on {
		cmd = cmdOn
	}
	return d.apply(Frame(cmd, 0, 0), func(s *protocol.LightStatus) {
		s.IsOpen = boolByte(on)
	})
}

// SetLevel implements device.Light. level is a percentage; the unit takes a
// drive current of level*255/100.
func (d *HL525) SetLevel(level uint8) error {
	if level > 100 {
		return device.ErrInvalidArgument
	}
	current := uint16(level) * 255 / 100
	return d.apply(Frame(cmdCurrent, byte(current>>8), byte(current)), func(s *protocol.LightStatus) {
		s.Brightness = level
	})
}

// SetStrobe implements device.Light.
func (d *HL525) SetStrobe(on bool) error {
	cmd := cmdStrobeOff
	if on {
		cmd = cmdStrobeOn
	}
	return d.apply(Frame(cmd, 0, 0), func(s *protocol.LightStatus) {
		s.StrobeFreq = 0
		if on {
			s.StrobeFreq = strobeFrequency
		}
	})
}

// LightStatus implements device.Light.
func (d *HL525) LightStatus() protocol.LightStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// apply sends frame and, on success, updates the cached status and pushes it.
func (d *HL525) apply(frame []byte, update func(*protocol.LightStatus)) error {
	if err := d.Send(frame); err != nil {
		return err
	}

	d.mu.Lock()
	update(&d.status)
	status := d.status
	d.mu.Unlock()

	if a := d.Actor(); a != nil {
		a.Emit(protocol.NewLightStatusPush(status))
	}
	return nil
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
