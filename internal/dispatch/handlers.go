package dispatch

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Value limits enforced before a request reaches a driver.
const (
	MaxLevel    = 100
	MaxVolume   = 100
	MaxPtzSpeed = 64
)

// NewDefault creates a dispatcher with handlers for every request in the
// canonical catalogue.
//
// Control and setting requests are answered with a Result. Query requests
// are answered with the family's status payload; a query that reaches a
// device without the capability is logged and left unanswered, since its
// response id carries no result code.
func NewDefault() *Dispatcher {
	d := New()
	registerSystem(d)
	registerLight(d)
	registerSound(d)
	registerPTZ(d)
	registerRelay(d)
	return d
}

// capability narrows the actor's driver to C.
func capability[C any](a *device.Actor) (C, error) {
	c, ok := a.Driver().(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("%w: %s", ErrCapability, a.ID())
	}
	return c, nil
}

// control registers a request whose reply is a plain Result.
func control[C, T any](d *Dispatcher, id protocol.ID, name string, fn func(c C, body T) error) {
	Handle(d, id, name, func(a *device.Actor, m *protocol.Message[T]) error {
		c, err := capability[C](a)
		if err != nil {
			return reply(a, m, err)
		}
		return reply(a, m, fn(c, m.Body))
	})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", device.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func registerSystem(d *Dispatcher) {
	Handle(d, protocol.IDNetConfigReq, "NetConfigReq", func(a *device.Actor, m *protocol.Message[protocol.NetConfig]) error {
		ip := protocol.CString(m.Body.IP[:])
		if ip == "" || m.Body.Port == 0 {
			return reply(a, m, invalid("ip %q port %d", ip, m.Body.Port))
		}
		if err := setProperty(a, device.PropIP, ip); err != nil {
			return reply(a, m, err)
		}
		return reply(a, m, setProperty(a, device.PropPort, strconv.Itoa(int(m.Body.Port))))
	})

	Handle(d, protocol.IDDevNameReq, "DevNameReq", func(a *device.Actor, m *protocol.Message[protocol.DevName]) error {
		name := protocol.CString(m.Body.Name[:])
		if name == "" {
			return reply(a, m, invalid("empty name"))
		}
		return reply(a, m, setProperty(a, device.PropName, name))
	})
}

// setProperty updates a property from inside the actor loop and notifies the
// driver.
func setProperty(a *device.Actor, key, value string) error {
	if err := a.Properties().Set(key, value); err != nil {
		return err
	}
	if h, ok := a.Driver().(device.ConfigHandler); ok {
		h.ConfigChanged(key, value)
	}
	return nil
}

func registerLight(d *Dispatcher) {
	control(d, protocol.IDLightSwitchReq, "LightSwitchReq", func(l device.Light, b protocol.Switch) error {
		return l.SetSwitch(b.IsOn())
	})
	control(d, protocol.IDLightLevelReq, "LightLevelReq", func(l device.Light, b protocol.Level) error {
		if b.Value > MaxLevel {
			return invalid("level %d", b.Value)
		}
		return l.SetLevel(b.Value)
	})
	control(d, protocol.IDLightStrobeReq, "LightStrobeReq", func(l device.Light, b protocol.Switch) error {
		return l.SetStrobe(b.IsOn())
	})

	Handle(d, protocol.IDLightStatusReq, "LightStatusReq", func(a *device.Actor, m *protocol.Message[protocol.Empty]) error {
		l, err := capability[device.Light](a)
		if err != nil {
			return err
		}
		a.Emit(protocol.NewLightStatusResp(m.Seq(), l.LightStatus()))
		return nil
	})
}

func registerSound(d *Dispatcher) {
	control(d, protocol.IDSoundPlayReq, "SoundPlayReq", func(s device.Sound, b protocol.SoundPlay) error {
		file := protocol.CString(b.Filename[:])
		if file == "" {
			return invalid("empty filename")
		}
		return s.Play(file, b.Loop != 0)
	})
	control(d, protocol.IDSoundStopReq, "SoundStopReq", func(s device.Sound, _ protocol.Empty) error {
		return s.StopPlay()
	})
	control(d, protocol.IDSoundTTSReq, "SoundTTSReq", func(s device.Sound, b protocol.SoundTTS) error {
		text := protocol.CString(b.Text[:])
		if text == "" {
			return invalid("empty text")
		}
		return s.Speak(text)
	})
	control(d, protocol.IDSoundMicReq, "SoundMicReq", func(s device.Sound, b protocol.Switch) error {
		return s.SetMic(b.IsOn())
	})
	control(d, protocol.IDSoundVolumeReq, "SoundVolumeReq", func(s device.Sound, b protocol.SoundVolume) error {
		if b.Volume > MaxVolume {
			return invalid("volume %d", b.Volume)
		}
		return s.SetVolume(b.Volume)
	})
}

func registerPTZ(d *Dispatcher) {
	control(d, protocol.IDPtzMoveReq, "PtzMoveReq", func(p device.PTZ, b protocol.PtzMotion) error {
		switch {
		case b.Action == protocol.PtzHalt:
			return p.Halt()
		case b.Action < protocol.PtzUp || b.Action > protocol.PtzRight:
			return invalid("action %d", b.Action)
		case b.Speed > MaxPtzSpeed:
			return invalid("speed %d", b.Speed)
		}
		return p.Move(b.Action, b.Speed)
	})
	control(d, protocol.IDPtzStopReq, "PtzStopReq", func(p device.PTZ, _ protocol.Empty) error {
		return p.Halt()
	})
	control(d, protocol.IDPtzPresetReq, "PtzPresetReq", func(p device.PTZ, b protocol.PtzPreset) error {
		if b.Action != protocol.PresetSet && b.Action != protocol.PresetGoto {
			return invalid("preset action %d", b.Action)
		}
		if b.Index == 0 {
			return invalid("preset index 0")
		}
		return p.Preset(b.Action, b.Index)
	})

	Handle(d, protocol.IDPtzPositionReq, "PtzPositionReq", func(a *device.Actor, m *protocol.Message[protocol.Empty]) error {
		p, err := capability[device.PTZ](a)
		if err != nil {
			return err
		}
		a.Emit(protocol.NewPtzPositionResp(m.Seq(), p.Position()))
		return nil
	})
}

func registerRelay(d *Dispatcher) {
	control(d, protocol.IDRelaySwitchReq, "RelaySwitchReq", func(r device.Relay, b protocol.RelaySwitch) error {
		if b.Channel == 0 {
			return invalid("channel 0")
		}
		return r.SetChannel(b.Channel, b.IsOpen != 0)
	})
}
