package protocol

import "bytes"

// Payload types. Every type is a packed, fixed-size layout; string fields are
// NUL-padded byte arrays.

// Empty is the payload of packets that carry no fields.
type Empty struct{}

// Result is the generic reply to control and setting requests.
type Result struct {
	Code uint32
	Msg  [64]byte
}

// NewResult builds a Result. msg is truncated to fit.
func NewResult(code Code, msg string) Result {
	r := Result{Code: uint32(code)}
	PutString(r.Msg[:], msg)
	return r
}

// Message returns the text of the result.
func (r Result) Message() string { return CString(r.Msg[:]) }

// DeviceStatus is pushed whenever a device's connection state changes or a
// transition is rejected.
type DeviceStatus struct {
	DeviceID    uint32
	SlotID      uint8
	State       uint8
	ErrorCode   uint32
	Temperature float32
}

// LightStatus reports the last known light output.
type LightStatus struct {
	IsOpen      uint8
	Brightness  uint8
	StrobeFreq  uint8
	Temperature float32
}

// Switch carries a single on/off flag.
type Switch struct {
	On uint8
}

// NewSwitch builds a Switch from a bool.
func NewSwitch(on bool) Switch { return Switch{On: boolByte(on)} }

// IsOn reports the flag.
func (s Switch) IsOn() bool { return s.On != 0 }

// Level carries a single 8-bit level (brightness percent).
type Level struct {
	Value uint8
}

// SoundPlay asks a speaker to play a stored file.
type SoundPlay struct {
	Filename [128]byte
	Loop     uint8
}

// NewSoundPlay builds a SoundPlay, truncating filename to fit.
func NewSoundPlay(filename string, loop bool) SoundPlay {
	var p SoundPlay
	PutString(p.Filename[:], filename)
	p.Loop = boolByte(loop)
	return p
}

// SoundTTS asks a speaker to synthesise text.
type SoundTTS struct {
	Text [256]byte
}

// NewSoundTTS builds a SoundTTS, truncating text to fit.
func NewSoundTTS(text string) SoundTTS {
	var p SoundTTS
	PutString(p.Text[:], text)
	return p
}

// SoundVolume sets the playback volume (0-100).
type SoundVolume struct {
	Volume uint8
}

// PtzMotion starts a pan/tilt movement.
// Action: 1=Up, 2=Down, 3=Left, 4=Right, 5=Stop. Speed: 0-64.
type PtzMotion struct {
	Action uint8
	Speed  uint8
}

// PTZ motion actions.
const (
	PtzUp    uint8 = 1
	PtzDown  uint8 = 2
	PtzLeft  uint8 = 3
	PtzRight uint8 = 4
	PtzHalt  uint8 = 5
)

// PtzPreset stores or recalls a preset position.
// Action: 1=Set, 2=Goto. Index: 1-255.
type PtzPreset struct {
	Action uint8
	Index  uint8
}

// Preset actions.
const (
	PresetSet  uint8 = 1
	PresetGoto uint8 = 2
)

// PtzPosition reports pan/tilt in degrees and the zoom ratio.
type PtzPosition struct {
	Pan  float32
	Tilt float32
	Zoom float32
}

// NetConfig changes a device's network endpoint.
type NetConfig struct {
	IP   [32]byte
	Port uint16
}

// NewNetConfig builds a NetConfig, truncating ip to fit.
func NewNetConfig(ip string, port uint16) NetConfig {
	var p NetConfig
	PutString(p.IP[:], ip)
	p.Port = port
	return p
}

// DevName renames a device.
type DevName struct {
	Name [64]byte
}

// NewDevName builds a DevName, truncating name to fit.
func NewDevName(name string) DevName {
	var p DevName
	PutString(p.Name[:], name)
	return p
}

// RelaySwitch opens or closes one relay channel (1-based).
type RelaySwitch struct {
	Channel uint8
	IsOpen  uint8
}

// PutString copies s into dst, truncating so that at least one trailing NUL
// remains, and zero-fills the rest.
func PutString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	copy(dst[:len(dst)-1], s)
}

// CString returns the bytes of b up to the first NUL as a string.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
