package supervisor

import (
	"context"
	"fmt"
	"math"
	"net"
	"sort"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/dispatch"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Command ops.
const (
	OpLightSwitch   = "light.switch"
	OpLightLevel    = "light.level"
	OpLightStrobe   = "light.strobe"
	OpLightStatus   = "light.status"
	OpPtzMove       = "ptz.move"
	OpPtzStop       = "ptz.stop"
	OpPtzPreset     = "ptz.preset"
	OpPtzZoom       = "ptz.zoom"
	OpPtzPosition   = "ptz.position"
	OpSoundPlay     = "sound.play"
	OpSoundStop     = "sound.stop"
	OpSoundTTS      = "sound.tts"
	OpSoundMic      = "sound.mic"
	OpSoundVolume   = "sound.volume"
	OpRelaySwitch   = "relay.switch"
	OpSetNetConfig  = "system.netconfig"
	OpSetDeviceName = "system.name"
)

// Command is a caller request in transport-neutral form. Only the fields the
// op uses are read.
type Command struct {
	Op      string `json:"op"`
	On      bool   `json:"on,omitempty"`
	Level   int    `json:"level,omitempty"`
	Action  int    `json:"action,omitempty"`
	Speed   int    `json:"speed,omitempty"`
	Index   int    `json:"index,omitempty"`
	Channel int    `json:"channel,omitempty"`
	Volume  int    `json:"volume,omitempty"`
	File    string `json:"file,omitempty"`
	Loop    bool   `json:"loop,omitempty"`
	Text    string `json:"text,omitempty"`
	IP      string `json:"ip,omitempty"`
	Port    int    `json:"port,omitempty"`
	Name    string `json:"name,omitempty"`
}

// builder validates a command and renders its request packet. FamilySystem
// accepts every family.
type builder struct {
	family protocol.Family
	build  func(c Command) (protocol.Packet, error)
}

var builders = map[string]builder{
	OpLightSwitch: {protocol.FamilyLight, func(c Command) (protocol.Packet, error) {
		return protocol.NewLightSwitchReq(c.On), nil
	}},
	OpLightLevel: {protocol.FamilyLight, func(c Command) (protocol.Packet, error) {
		if err := inRange("level", c.Level, 0, dispatch.MaxLevel); err != nil {
			return nil, err
		}
		return protocol.NewLightLevelReq(uint8(c.Level)), nil
	}},
	OpLightStrobe: {protocol.FamilyLight, func(c Command) (protocol.Packet, error) {
		return protocol.NewLightStrobeReq(c.On), nil
	}},
	OpLightStatus: {protocol.FamilyLight, func(Command) (protocol.Packet, error) {
		return protocol.NewLightStatusReq(), nil
	}},

	OpPtzMove: {protocol.FamilyPTZ, func(c Command) (protocol.Packet, error) {
		if err := inRange("action", c.Action, int(protocol.PtzUp), int(protocol.PtzHalt)); err != nil {
			return nil, err
		}
		if err := inRange("speed", c.Speed, 0, dispatch.MaxPtzSpeed); err != nil {
			return nil, err
		}
		return protocol.NewPtzMoveReq(uint8(c.Action), uint8(c.Speed)), nil
	}},
	OpPtzStop: {protocol.FamilyPTZ, func(Command) (protocol.Packet, error) {
		return protocol.NewPtzStopReq(), nil
	}},
	OpPtzPreset: {protocol.FamilyPTZ, func(c Command) (protocol.Packet, error) {
		if c.Action != int(protocol.PresetSet) && c.Action != int(protocol.PresetGoto) {
			return nil, fmt.Errorf("%w: preset action %d", device.ErrInvalidArgument, c.Action)
		}
		if err := inRange("preset index", c.Index, 1, math.MaxUint8); err != nil {
			return nil, err
		}
		return protocol.NewPtzPresetReq(uint8(c.Action), uint8(c.Index)), nil
	}},
	OpPtzZoom: {protocol.FamilyPTZ, func(Command) (protocol.Packet, error) {
		return nil, fmt.Errorf("%w: zoom", device.ErrUnsupported)
	}},
	OpPtzPosition: {protocol.FamilyPTZ, func(Command) (protocol.Packet, error) {
		return protocol.NewPtzPositionReq(), nil
	}},

	OpSoundPlay: {protocol.FamilySound, func(c Command) (protocol.Packet, error) {
		if c.File == "" {
			return nil, fmt.Errorf("%w: empty file", device.ErrInvalidArgument)
		}
		return protocol.NewSoundPlayReq(c.File, c.Loop), nil
	}},
	OpSoundStop: {protocol.FamilySound, func(Command) (protocol.Packet, error) {
		return protocol.NewSoundStopReq(), nil
	}},
	OpSoundTTS: {protocol.FamilySound, func(c Command) (protocol.Packet, error) {
		if c.Text == "" {
			return nil, fmt.Errorf("%w: empty text", device.ErrInvalidArgument)
		}
		return protocol.NewSoundTTSReq(c.Text), nil
	}},
	OpSoundMic: {protocol.FamilySound, func(c Command) (protocol.Packet, error) {
		return protocol.NewSoundMicReq(c.On), nil
	}},
	OpSoundVolume: {protocol.FamilySound, func(c Command) (protocol.Packet, error) {
		if err := inRange("volume", c.Volume, 0, dispatch.MaxVolume); err != nil {
			return nil, err
		}
		return protocol.NewSoundVolumeReq(uint8(c.Volume)), nil
	}},

	OpRelaySwitch: {protocol.FamilyRelay, func(c Command) (protocol.Packet, error) {
		if err := inRange("channel", c.Channel, 1, math.MaxUint8); err != nil {
			return nil, err
		}
		return protocol.NewRelaySwitchReq(uint8(c.Channel), c.On), nil
	}},

	OpSetNetConfig: {protocol.FamilySystem, func(c Command) (protocol.Packet, error) {
		if net.ParseIP(c.IP) == nil {
			return nil, fmt.Errorf("%w: ip %q", device.ErrInvalidArgument, c.IP)
		}
		if err := inRange("port", c.Port, 1, math.MaxUint16); err != nil {
			return nil, err
		}
		return protocol.NewNetConfigReq(c.IP, uint16(c.Port)), nil
	}},
	OpSetDeviceName: {protocol.FamilySystem, func(c Command) (protocol.Packet, error) {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: empty name", device.ErrInvalidArgument)
		}
		return protocol.NewDevNameReq(c.Name), nil
	}},
}

func inRange(what string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d not in %d..%d", device.ErrInvalidArgument, what, v, lo, hi)
	}
	return nil
}

// Ops returns every supported command op, sorted.
func Ops() []string {
	ops := make([]string, 0, len(builders))
	for op := range builders {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Execute validates cmd, builds its request packet and queues it for h. It
// returns as soon as the packet is queued; the device's reply arrives as a
// push carrying the returned sequence number.
//
// Parameters:
//   - h: Target device
//   - cmd: Command with Op set
//
// Returns:
//   - uint32: Sequence number stamped on the request
//   - error: ErrUnknownOp, ErrDeviceNotFound, ErrWrongFamily,
//     device.ErrInvalidArgument, device.ErrUnsupported, ErrOffline or
//     ErrStopped. Map with CodeOf.
func (s *Supervisor) Execute(h Handle, cmd Command) (uint32, error) {
	b, ok := builders[cmd.Op]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
	if s.isStopped() {
		return 0, ErrStopped
	}
	m, err := s.lookup(h)
	if err != nil {
		return 0, err
	}
	if family := m.actor.ID().Family(); b.family != protocol.FamilySystem && family != b.family {
		return 0, fmt.Errorf("%w: %s on %s", ErrWrongFamily, cmd.Op, family)
	}

	pkt, err := b.build(cmd)
	if err != nil {
		return 0, err
	}
	if !m.actor.IsOnline() {
		return 0, fmt.Errorf("%w: %s is %s", ErrOffline, m.actor.ID(), m.actor.State())
	}

	seq := s.nextSeq()
	pkt.SetSeq(seq)
	if err := m.actor.SubmitPacket(pkt); err != nil {
		return 0, fmt.Errorf("submitting %s: %w", cmd.Op, err)
	}
	return seq, nil
}

func (s *Supervisor) nextSeq() uint32 {
	for {
		if seq := s.seq.Add(1); seq != 0 {
			return seq
		}
	}
}

func (s *Supervisor) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *Supervisor) run(h Handle, cmd Command) protocol.Code {
	_, err := s.Execute(h, cmd)
	if err != nil {
		s.logger.Debug("command rejected", "handle", int(h), "op", cmd.Op, "error", err)
	}
	return CodeOf(err)
}

// LightSwitch turns a light on or off.
func (s *Supervisor) LightSwitch(h Handle, on bool) protocol.Code {
	return s.run(h, Command{Op: OpLightSwitch, On: on})
}

// LightLevel sets brightness in percent (0-100).
func (s *Supervisor) LightLevel(h Handle, level int) protocol.Code {
	return s.run(h, Command{Op: OpLightLevel, Level: level})
}

// LightStrobe turns strobing on or off.
func (s *Supervisor) LightStrobe(h Handle, on bool) protocol.Code {
	return s.run(h, Command{Op: OpLightStrobe, On: on})
}

// PtzMove starts a movement (action 1-4) or stops (action 5) at speed 0-64.
func (s *Supervisor) PtzMove(h Handle, action, speed int) protocol.Code {
	return s.run(h, Command{Op: OpPtzMove, Action: action, Speed: speed})
}

// PtzStop halts any movement.
func (s *Supervisor) PtzStop(h Handle) protocol.Code {
	return s.run(h, Command{Op: OpPtzStop})
}

// PtzPreset stores (action 1) or recalls (action 2) preset index 1-255.
func (s *Supervisor) PtzPreset(h Handle, action, index int) protocol.Code {
	return s.run(h, Command{Op: OpPtzPreset, Action: action, Index: index})
}

// PtzZoom is not supported by any PTZ model.
func (s *Supervisor) PtzZoom(h Handle, in bool) protocol.Code {
	return s.run(h, Command{Op: OpPtzZoom, On: in})
}

// SoundPlay plays a stored file.
func (s *Supervisor) SoundPlay(h Handle, file string, loop bool) protocol.Code {
	return s.run(h, Command{Op: OpSoundPlay, File: file, Loop: loop})
}

// SoundStop stops playback.
func (s *Supervisor) SoundStop(h Handle) protocol.Code {
	return s.run(h, Command{Op: OpSoundStop})
}

// SoundTTS speaks text.
func (s *Supervisor) SoundTTS(h Handle, text string) protocol.Code {
	return s.run(h, Command{Op: OpSoundTTS, Text: text})
}

// SoundMic switches microphone broadcast.
func (s *Supervisor) SoundMic(h Handle, on bool) protocol.Code {
	return s.run(h, Command{Op: OpSoundMic, On: on})
}

// SoundVolume sets playback volume (0-100).
func (s *Supervisor) SoundVolume(h Handle, volume int) protocol.Code {
	return s.run(h, Command{Op: OpSoundVolume, Volume: volume})
}

// RelaySwitch opens or closes a relay channel (1-based).
func (s *Supervisor) RelaySwitch(h Handle, channel int, open bool) protocol.Code {
	return s.run(h, Command{Op: OpRelaySwitch, Channel: channel, On: open})
}

// GetConfig returns one property of h.
func (s *Supervisor) GetConfig(h Handle, key string) (string, error) {
	m, err := s.lookup(h)
	if err != nil {
		return "", err
	}
	v, ok := m.actor.Properties().Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", device.ErrUnknownProperty, key)
	}
	return v, nil
}

// Config returns every property of h.
func (s *Supervisor) Config(h Handle) (map[string]string, error) {
	m, err := s.lookup(h)
	if err != nil {
		return nil, err
	}
	return m.actor.Properties().Snapshot(), nil
}

// SetConfig validates value and queues it for h's actor, which stores it and
// notifies the driver. The change is persisted when an override store is
// configured.
//
// Parameters:
//   - ctx: Bounds the override write
//   - h: Target device
//   - key: Declared property key
//   - value: New value, checked against the property type
//
// Returns:
//   - error: ErrDeviceNotFound, device.ErrUnknownProperty,
//     device.ErrInvalidProperty, ErrStopped, or an override store error
func (s *Supervisor) SetConfig(ctx context.Context, h Handle, key, value string) error {
	if s.isStopped() {
		return ErrStopped
	}
	m, err := s.lookup(h)
	if err != nil {
		return err
	}
	if err := m.actor.Properties().Validate(key, value); err != nil {
		return err
	}
	if err := m.actor.PostConfig(key, value); err != nil {
		return fmt.Errorf("posting %s: %w", key, err)
	}

	if s.cfg.Overrides != nil {
		if err := s.cfg.Overrides.Save(ctx, m.section, key, value); err != nil {
			return fmt.Errorf("persisting %s: %w", key, err)
		}
	}
	return nil
}
