// Package ptz implements the YZ-BY010W pan-tilt driver.
//
// The unit speaks Pelco-D over TCP. Every frame is seven bytes:
//
//	FF <addr> <cmd1> <cmd2> <data1> <data2> <sum>
//
// where sum is the low byte of bytes 1..5. Position queries (51/53/55) are
// answered with 59/5B/5D frames carrying the angle in hundredths of a
// degree.
package ptz

import (
	"bytes"
	"sync"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/drivers/link"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Pelco-D command bytes (cmd2).
const (
	cmdRight      byte = 0x02
	cmdLeft       byte = 0x04
	cmdUp         byte = 0x08
	cmdDown       byte = 0x10
	cmdPresetSet  byte = 0x03
	cmdPresetGoto byte = 0x07

	cmdQueryPan  byte = 0x51
	cmdQueryTilt byte = 0x53
	cmdQueryZoom byte = 0x55
	respPan      byte = 0x59
	respTilt     byte = 0x5B
	respZoom     byte = 0x5D
)

const (
	syncByte       byte = 0xFF
	frameSize           = 7
	defaultAddress byte = 1
	connectTimeout      = 500 * time.Millisecond
)

// YZBY010W drives one YZ-BY010W pan-tilt unit.
type YZBY010W struct {
	*link.Link

	addr byte

	mu  sync.Mutex
	pos protocol.PtzPosition
	rx  []byte
}

var (
	_ device.PTZ       = (*YZBY010W)(nil)
	_ device.RawReader = (*YZBY010W)(nil)
)

// New creates a YZ-BY010W driver.
func New(dial link.Dialer) device.Driver {
	return &YZBY010W{Link: link.New(dial, connectTimeout), addr: defaultAddress}
}

// Declare implements device.Driver.
func (d *YZBY010W) Declare(p *device.Properties) {
	p.Declare(device.PropType, "PTZ", device.PropString, "Device type")
}

// Configure implements device.Driver. The Pelco-D address is the low byte
// of the device ID (the instance index).
func (d *YZBY010W) Configure(a *device.Actor) error {
	d.addr = a.ID().Index()
	if d.addr == 0 {
		d.addr = defaultAddress
	}
	return d.Bind(a)
}

// Address returns the Pelco-D address.
func (d *YZBY010W) Address() byte { return d.addr }

// Frame builds one Pelco-D frame.
func Frame(addr, cmd1, cmd2, data1, data2 byte) []byte {
	buf := make([]byte, frameSize)
	buf[0] = syncByte
	buf[1] = addr
	buf[2] = cmd1
	buf[3] = cmd2
	buf[4] = data1
	buf[5] = data2
	buf[6] = checksum(buf)
	return buf
}

func checksum(frame []byte) byte {
	var sum uint32
	for _, b := range frame[1:6] {
		sum += uint32(b)
	}
	return byte(sum % 256)
}

// Move implements device.PTZ. Pan speed goes in data1 and tilt speed in
// data2. The device reports WORKING until Halt.
func (d *YZBY010W) Move(action, speed uint8) error {
	var cmd2, d1, d2 byte
	switch action {
	case protocol.PtzUp:
		cmd2, d2 = cmdUp, speed
	case protocol.PtzDown:
		cmd2, d2 = cmdDown, speed
	case protocol.PtzLeft:
		cmd2, d1 = cmdLeft, speed
	case protocol.PtzRight:
		cmd2, d1 = cmdRight, speed
	case protocol.PtzHalt:
		return d.Halt()
	default:
		return device.ErrInvalidArgument
	}

	if err := d.Send(Frame(d.addr, 0x00, cmd2, d1, d2)); err != nil {
		return err
	}
	d.setWorking(true)
	return nil
}

// Halt implements device.PTZ and refreshes the cached position.
func (d *YZBY010W) Halt() error {
	if err := d.Send(Frame(d.addr, 0x00, 0x00, 0x00, 0x00)); err != nil {
		return err
	}
	d.setWorking(false)
	return d.queryPosition()
}

// Preset implements device.PTZ.
func (d *YZBY010W) Preset(action, index uint8) error {
	var cmd2 byte
	switch action {
	case protocol.PresetSet:
		cmd2 = cmdPresetSet
	case protocol.PresetGoto:
		cmd2 = cmdPresetGoto
	default:
		return device.ErrInvalidArgument
	}
	if err := d.Send(Frame(d.addr, 0x00, cmd2, 0x00, index)); err != nil {
		return err
	}
	if action == protocol.PresetGoto {
		return d.queryPosition()
	}
	return nil
}

// Position implements device.PTZ.
func (d *YZBY010W) Position() protocol.PtzPosition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *YZBY010W) queryPosition() error {
	for _, cmd := range []byte{cmdQueryPan, cmdQueryTilt, cmdQueryZoom} {
		if err := d.Send(Frame(d.addr, 0x00, cmd, 0x00, 0x00)); err != nil {
			return err
		}
	}
	return nil
}

func (d *YZBY010W) setWorking(moving bool) {
	a := d.Actor()
	if a == nil {
		return
	}
	switch {
	case moving && a.State() == device.StateOnline:
		_ = a.SetState(device.StateWorking, device.ErrCodeNone)
	case !moving && a.State() == device.StateWorking:
		_ = a.SetState(device.StateOnline, device.ErrCodeNone)
	}
}

// ReadRaw implements device.RawReader.
func (d *YZBY010W) ReadRaw(buf []byte, timeout time.Duration) (int, error) {
	return d.Read(buf, timeout)
}

// OnRawData implements device.RawReader. Bytes are accumulated until a full
// frame with a valid checksum is available; garbage before a sync byte is
// discarded.
func (d *YZBY010W) OnRawData(data []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, data...)
	var updates []protocol.PtzPosition
	for {
		frame, ok := d.nextFrame()
		if !ok {
			break
		}
		if d.applyResponse(frame) {
			updates = append(updates, d.pos)
		}
	}
	d.mu.Unlock()

	a := d.Actor()
	if a == nil {
		return
	}
	for _, p := range updates {
		a.Emit(protocol.NewPtzPositionPush(p))
	}
}

// nextFrame extracts one checksummed frame from d.rx. Caller holds d.mu.
func (d *YZBY010W) nextFrame() ([]byte, bool) {
	for {
		i := bytes.IndexByte(d.rx, syncByte)
		if i < 0 {
			d.rx = d.rx[:0]
			return nil, false
		}
		d.rx = d.rx[i:]
		if len(d.rx) < frameSize {
			return nil, false
		}
		frame := d.rx[:frameSize]
		if checksum(frame) == frame[6] {
			out := append([]byte(nil), frame...)
			d.rx = d.rx[frameSize:]
			return out, true
		}
		d.rx = d.rx[1:]
	}
}

// applyResponse updates the cached position. Caller holds d.mu.
func (d *YZBY010W) applyResponse(frame []byte) bool {
	value := float32(uint16(frame[4])<<8|uint16(frame[5])) / 100
	switch frame[3] {
	case respPan:
		d.pos.Pan = value
	case respTilt:
		if value > 180 {
			value -= 360
		}
		d.pos.Tilt = value
	case respZoom:
		d.pos.Zoom = value
	default:
		return false
	}
	return true
}
