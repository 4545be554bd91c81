package protocol

import "strings"

// Packet ids of the canonical catalogue.
var (
	// System (family-agnostic)
	IDDeviceStatusPush = MakeID(FamilySystem, CategoryOneWay, false, 1)
	IDNetConfigReq     = MakeID(FamilySystem, CategorySetting, false, 1)
	IDNetConfigResp    = MakeID(FamilySystem, CategorySetting, true, 1)
	IDDevNameReq       = MakeID(FamilySystem, CategorySetting, false, 2)
	IDDevNameResp      = MakeID(FamilySystem, CategorySetting, true, 2)

	// Light
	IDLightStatusPush  = MakeID(FamilyLight, CategoryOneWay, false, 1)
	IDLightSwitchReq   = MakeID(FamilyLight, CategoryControl, false, 1)
	IDLightSwitchResp  = MakeID(FamilyLight, CategoryControl, true, 1)
	IDLightLevelReq    = MakeID(FamilyLight, CategoryControl, false, 2)
	IDLightLevelResp   = MakeID(FamilyLight, CategoryControl, true, 2)
	IDLightStrobeReq   = MakeID(FamilyLight, CategoryControl, false, 3)
	IDLightStrobeResp  = MakeID(FamilyLight, CategoryControl, true, 3)
	IDLightStatusReq   = MakeID(FamilyLight, CategoryQuery, false, 1)
	IDLightStatusResp  = MakeID(FamilyLight, CategoryQuery, true, 1)

	// Sound
	IDSoundPlayEndPush = MakeID(FamilySound, CategoryOneWay, false, 1)
	IDSoundPlayReq     = MakeID(FamilySound, CategoryControl, false, 1)
	IDSoundPlayResp    = MakeID(FamilySound, CategoryControl, true, 1)
	IDSoundStopReq     = MakeID(FamilySound, CategoryControl, false, 2)
	IDSoundStopResp    = MakeID(FamilySound, CategoryControl, true, 2)
	IDSoundTTSReq      = MakeID(FamilySound, CategoryControl, false, 3)
	IDSoundTTSResp     = MakeID(FamilySound, CategoryControl, true, 3)
	IDSoundMicReq      = MakeID(FamilySound, CategoryControl, false, 4)
	IDSoundMicResp     = MakeID(FamilySound, CategoryControl, true, 4)
	IDSoundVolumeReq   = MakeID(FamilySound, CategorySetting, false, 1)
	IDSoundVolumeResp  = MakeID(FamilySound, CategorySetting, true, 1)

	// PTZ
	IDPtzPositionPush = MakeID(FamilyPTZ, CategoryOneWay, false, 1)
	IDPtzMoveReq      = MakeID(FamilyPTZ, CategoryControl, false, 1)
	IDPtzMoveResp     = MakeID(FamilyPTZ, CategoryControl, true, 1)
	IDPtzStopReq      = MakeID(FamilyPTZ, CategoryControl, false, 2)
	IDPtzStopResp     = MakeID(FamilyPTZ, CategoryControl, true, 2)
	IDPtzPresetReq    = MakeID(FamilyPTZ, CategoryControl, false, 3)
	IDPtzPresetResp   = MakeID(FamilyPTZ, CategoryControl, true, 3)
	IDPtzPositionReq  = MakeID(FamilyPTZ, CategoryQuery, false, 1)
	IDPtzPositionResp = MakeID(FamilyPTZ, CategoryQuery, true, 1)

	// Relay
	IDRelaySwitchReq  = MakeID(FamilyRelay, CategoryControl, false, 1)
	IDRelaySwitchResp = MakeID(FamilyRelay, CategoryControl, true, 1)
)

// Def describes one catalogue entry.
type Def struct {
	ID   ID
	Name string
	New  func() Packet
}

func def[T any](id ID, name string) Def {
	return Def{
		ID:   id,
		Name: name,
		New:  func() Packet { var zero T; return NewMessage(id, name, zero) },
	}
}

// Catalogue returns every packet type of the canonical catalogue.
func Catalogue() []Def {
	return []Def{
		def[DeviceStatus](IDDeviceStatusPush, "DeviceStatusPush"),
		def[NetConfig](IDNetConfigReq, "NetConfigReq"),
		def[Result](IDNetConfigResp, "NetConfigResp"),
		def[DevName](IDDevNameReq, "DevNameReq"),
		def[Result](IDDevNameResp, "DevNameResp"),

		def[LightStatus](IDLightStatusPush, "LightStatusPush"),
		def[Switch](IDLightSwitchReq, "LightSwitchReq"),
		def[Result](IDLightSwitchResp, "LightSwitchResp"),
		def[Level](IDLightLevelReq, "LightLevelReq"),
		def[Result](IDLightLevelResp, "LightLevelResp"),
		def[Switch](IDLightStrobeReq, "LightStrobeReq"),
		def[Result](IDLightStrobeResp, "LightStrobeResp"),
		def[Empty](IDLightStatusReq, "LightStatusReq"),
		def[LightStatus](IDLightStatusResp, "LightStatusResp"),

		def[Empty](IDSoundPlayEndPush, "SoundPlayEndPush"),
		def[SoundPlay](IDSoundPlayReq, "SoundPlayReq"),
		def[Result](IDSoundPlayResp, "SoundPlayResp"),
		def[Empty](IDSoundStopReq, "SoundStopReq"),
		def[Result](IDSoundStopResp, "SoundStopResp"),
		def[SoundTTS](IDSoundTTSReq, "SoundTTSReq"),
		def[Result](IDSoundTTSResp, "SoundTTSResp"),
		def[Switch](IDSoundMicReq, "SoundMicReq"),
		def[Result](IDSoundMicResp, "SoundMicResp"),
		def[SoundVolume](IDSoundVolumeReq, "SoundVolumeReq"),
		def[Result](IDSoundVolumeResp, "SoundVolumeResp"),

		def[PtzPosition](IDPtzPositionPush, "PtzPositionPush"),
		def[PtzMotion](IDPtzMoveReq, "PtzMoveReq"),
		def[Result](IDPtzMoveResp, "PtzMoveResp"),
		def[Empty](IDPtzStopReq, "PtzStopReq"),
		def[Result](IDPtzStopResp, "PtzStopResp"),
		def[PtzPreset](IDPtzPresetReq, "PtzPresetReq"),
		def[Result](IDPtzPresetResp, "PtzPresetResp"),
		def[Empty](IDPtzPositionReq, "PtzPositionReq"),
		def[PtzPosition](IDPtzPositionResp, "PtzPositionResp"),

		def[RelaySwitch](IDRelaySwitchReq, "RelaySwitchReq"),
		def[Result](IDRelaySwitchResp, "RelaySwitchResp"),
	}
}

// Typed constructors for the packets the runtime builds itself.

// NewDeviceStatusPush builds a status push.
func NewDeviceStatusPush(s DeviceStatus) *Message[DeviceStatus] {
	return NewMessage(IDDeviceStatusPush, "DeviceStatusPush", s)
}

// NewNetConfigReq builds a network settings request.
func NewNetConfigReq(ip string, port uint16) *Message[NetConfig] {
	return NewMessage(IDNetConfigReq, "NetConfigReq", NewNetConfig(ip, port))
}

// NewDevNameReq builds a rename request.
func NewDevNameReq(name string) *Message[DevName] {
	return NewMessage(IDDevNameReq, "DevNameReq", NewDevName(name))
}

// NewLightStatusPush builds a light status push.
func NewLightStatusPush(s LightStatus) *Message[LightStatus] {
	return NewMessage(IDLightStatusPush, "LightStatusPush", s)
}

// NewLightSwitchReq builds a light on/off request.
func NewLightSwitchReq(on bool) *Message[Switch] {
	return NewMessage(IDLightSwitchReq, "LightSwitchReq", NewSwitch(on))
}

// NewLightLevelReq builds a brightness request (0-100).
func NewLightLevelReq(level uint8) *Message[Level] {
	return NewMessage(IDLightLevelReq, "LightLevelReq", Level{Value: level})
}

// NewLightStrobeReq builds a strobe on/off request.
func NewLightStrobeReq(on bool) *Message[Switch] {
	return NewMessage(IDLightStrobeReq, "LightStrobeReq", NewSwitch(on))
}

// NewLightStatusReq builds a light status query.
func NewLightStatusReq() *Message[Empty] {
	return NewMessage(IDLightStatusReq, "LightStatusReq", Empty{})
}

// NewLightStatusResp builds the reply to a light status query.
func NewLightStatusResp(seq uint32, s LightStatus) *Message[LightStatus] {
	m := NewMessage(IDLightStatusResp, "LightStatusResp", s)
	m.SetSeq(seq)
	return m
}

// NewSoundPlayEndPush builds a play-finished push.
func NewSoundPlayEndPush() *Message[Empty] {
	return NewMessage(IDSoundPlayEndPush, "SoundPlayEndPush", Empty{})
}

// NewSoundPlayReq builds a play-file request.
func NewSoundPlayReq(filename string, loop bool) *Message[SoundPlay] {
	return NewMessage(IDSoundPlayReq, "SoundPlayReq", NewSoundPlay(filename, loop))
}

// NewSoundStopReq builds a stop-playback request.
func NewSoundStopReq() *Message[Empty] {
	return NewMessage(IDSoundStopReq, "SoundStopReq", Empty{})
}

// NewSoundTTSReq builds a text-to-speech request.
func NewSoundTTSReq(text string) *Message[SoundTTS] {
	return NewMessage(IDSoundTTSReq, "SoundTTSReq", NewSoundTTS(text))
}

// NewSoundMicReq builds a microphone on/off request.
func NewSoundMicReq(on bool) *Message[Switch] {
	return NewMessage(IDSoundMicReq, "SoundMicReq", NewSwitch(on))
}

// NewSoundVolumeReq builds a volume request (0-100).
func NewSoundVolumeReq(volume uint8) *Message[SoundVolume] {
	return NewMessage(IDSoundVolumeReq, "SoundVolumeReq", SoundVolume{Volume: volume})
}

// NewPtzPositionPush builds a position push.
func NewPtzPositionPush(p PtzPosition) *Message[PtzPosition] {
	return NewMessage(IDPtzPositionPush, "PtzPositionPush", p)
}

// NewPtzMoveReq builds a pan/tilt motion request.
func NewPtzMoveReq(action, speed uint8) *Message[PtzMotion] {
	return NewMessage(IDPtzMoveReq, "PtzMoveReq", PtzMotion{Action: action, Speed: speed})
}

// NewPtzStopReq builds a stop-motion request.
func NewPtzStopReq() *Message[Empty] {
	return NewMessage(IDPtzStopReq, "PtzStopReq", Empty{})
}

// NewPtzPresetReq builds a preset request.
func NewPtzPresetReq(action, index uint8) *Message[PtzPreset] {
	return NewMessage(IDPtzPresetReq, "PtzPresetReq", PtzPreset{Action: action, Index: index})
}

// NewPtzPositionReq builds a position query.
func NewPtzPositionReq() *Message[Empty] {
	return NewMessage(IDPtzPositionReq, "PtzPositionReq", Empty{})
}

// NewPtzPositionResp builds the reply to a position query.
func NewPtzPositionResp(seq uint32, p PtzPosition) *Message[PtzPosition] {
	m := NewMessage(IDPtzPositionResp, "PtzPositionResp", p)
	m.SetSeq(seq)
	return m
}

// NewRelaySwitchReq builds a relay channel request.
func NewRelaySwitchReq(channel uint8, open bool) *Message[RelaySwitch] {
	return NewMessage(IDRelaySwitchReq, "RelaySwitchReq", RelaySwitch{Channel: channel, IsOpen: boolByte(open)})
}

// NewResultFor builds the Result reply paired with req, carrying req's
// sequence counter.
//
// Parameters:
//   - req: The request being answered
//   - code: Outcome code
//   - msg: Short human-readable detail (truncated to 63 bytes)
//
// Returns:
//   - *Message[Result]: Reply with id req.ID().Response()
func NewResultFor(req Packet, code Code, msg string) *Message[Result] {
	name := strings.TrimSuffix(req.Name(), "Req") + "Resp"
	m := NewMessage(req.ID().Response(), name, NewResult(code, msg))
	m.SetSeq(req.Seq())
	return m
}
