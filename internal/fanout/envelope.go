package fanout

import (
	"strings"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Kind classifies a push for routing.
type Kind string

// Push kinds.
const (
	KindStatus       Kind = "status"
	KindPtzPosition  Kind = "ptz_position"
	KindSoundPlayEnd Kind = "sound_play_end"
	KindLightStatus  Kind = "light_status"
	KindReply        Kind = "reply"
)

// StatusView is the JSON form of a device status push.
type StatusView struct {
	State       string  `json:"state"`
	StateCode   uint8   `json:"state_code"`
	ErrorCode   uint32  `json:"error_code"`
	Temperature float32 `json:"temperature"`
}

// PositionView is the JSON form of a PTZ position.
type PositionView struct {
	Pan  float32 `json:"pan"`
	Tilt float32 `json:"tilt"`
	Zoom float32 `json:"zoom"`
}

// LightView is the JSON form of a light status.
type LightView struct {
	On         bool    `json:"on"`
	Brightness uint8   `json:"brightness"`
	Strobe     uint8   `json:"strobe"`
	Temp       float32 `json:"temperature"`
}

// ResultView is the JSON form of a control result.
type ResultView struct {
	Code    uint32 `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Envelope is the transport-neutral JSON form of one push. Exactly one of
// the view fields is set, except for sound_play_end which carries none.
type Envelope struct {
	Kind      Kind      `json:"kind"`
	DeviceID  string    `json:"device_id"`
	Handle    int       `json:"handle"`
	Family    string    `json:"family"`
	Packet    string    `json:"packet"`
	Seq       uint32    `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Status   *StatusView   `json:"status,omitempty"`
	Position *PositionView `json:"position,omitempty"`
	Light    *LightView    `json:"light,omitempty"`
	Result   *ResultView   `json:"result,omitempty"`
	Body     any           `json:"body,omitempty"`
}

// FamilyName returns the lower-case family name used in topics and tags.
func FamilyName(f protocol.Family) string { return strings.ToLower(f.String()) }

// Describe converts a push into its Envelope.
func Describe(p device.Push, now time.Time) Envelope {
	env := Envelope{
		DeviceID:  p.Device.Hex(),
		Handle:    p.Slot,
		Family:    FamilyName(p.Device.Family()),
		Packet:    p.Packet.Name(),
		Seq:       p.Packet.Seq(),
		Timestamp: now.UTC(),
		Kind:      KindReply,
	}

	id := p.Packet.ID()
	switch m := p.Packet.(type) {
	case *protocol.Message[protocol.DeviceStatus]:
		env.Status = &StatusView{
			State:       device.State(m.Body.State).String(),
			StateCode:   m.Body.State,
			ErrorCode:   m.Body.ErrorCode,
			Temperature: m.Body.Temperature,
		}
		if id == protocol.IDDeviceStatusPush {
			env.Kind = KindStatus
		}
	case *protocol.Message[protocol.PtzPosition]:
		env.Position = &PositionView{Pan: m.Body.Pan, Tilt: m.Body.Tilt, Zoom: m.Body.Zoom}
		if id == protocol.IDPtzPositionPush {
			env.Kind = KindPtzPosition
		}
	case *protocol.Message[protocol.LightStatus]:
		env.Light = &LightView{
			On:         m.Body.IsOpen != 0,
			Brightness: m.Body.Brightness,
			Strobe:     m.Body.StrobeFreq,
			Temp:       m.Body.Temperature,
		}
		if id == protocol.IDLightStatusPush {
			env.Kind = KindLightStatus
		}
	case *protocol.Message[protocol.Result]:
		env.Result = &ResultView{
			Code:    m.Body.Code,
			Status:  protocol.Code(m.Body.Code).String(),
			Message: m.Body.Message(),
		}
	case *protocol.Message[protocol.Empty]:
		if id == protocol.IDSoundPlayEndPush {
			env.Kind = KindSoundPlayEnd
		}
	default:
		env.Body = p.Packet.Payload()
	}
	return env
}
