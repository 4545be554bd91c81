package fanout

import (
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// TelemetryWriter is the write surface of *influxdb.Client.
type TelemetryWriter interface {
	WriteDeviceStatus(tags influxdb.DeviceTags, state string, errorCode uint32, temperature float32, at time.Time)
	WritePtzPosition(tags influxdb.DeviceTags, pan, tilt, zoom float32, at time.Time)
	WriteLightStatus(tags influxdb.DeviceTags, on bool, brightness, strobe uint8, at time.Time)
}

// InfluxSink writes telemetry for status, PTZ position and light status
// pushes and replies. Other packets are ignored.
type InfluxSink struct {
	w   TelemetryWriter
	now func() time.Time
}

// NewInfluxSink creates a telemetry sink.
func NewInfluxSink(w TelemetryWriter) *InfluxSink {
	return &InfluxSink{w: w, now: time.Now}
}

// HandlePush implements supervisor.Sink.
func (s *InfluxSink) HandlePush(p device.Push) {
	tags := influxdb.DeviceTags{
		DeviceID: p.Device.Hex(),
		Family:   FamilyName(p.Device.Family()),
		Slot:     p.Slot,
	}
	at := s.now()

	switch m := p.Packet.(type) {
	case *protocol.Message[protocol.DeviceStatus]:
		s.w.WriteDeviceStatus(tags, device.State(m.Body.State).String(), m.Body.ErrorCode, m.Body.Temperature, at)
	case *protocol.Message[protocol.PtzPosition]:
		s.w.WritePtzPosition(tags, m.Body.Pan, m.Body.Tilt, m.Body.Zoom, at)
	case *protocol.Message[protocol.LightStatus]:
		s.w.WriteLightStatus(tags, m.Body.IsOpen != 0, m.Body.Brightness, m.Body.StrobeFreq, at)
	}
}
