package fanout

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/mqtt"
)

// Logger is the logging interface used by the sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the MQTT publishing surface. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes every push as an Envelope.
//
// Status pushes are retained so new subscribers see the current state.
// Publish failures are logged and the push is dropped; the broker link
// reconnects on its own.
type MQTTSink struct {
	pub    Publisher
	qos    byte
	logger Logger
	now    func() time.Time
}

// NewMQTTSink creates a sink publishing with qos.
func NewMQTTSink(pub Publisher, qos byte, logger Logger) *MQTTSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTSink{pub: pub, qos: qos, logger: logger, now: time.Now}
}

// HandlePush implements supervisor.Sink.
func (s *MQTTSink) HandlePush(p device.Push) {
	env := Describe(p, s.now())

	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("encoding push", "device", env.DeviceID, "packet", env.Packet, "error", err)
		return
	}

	topic, retained := topicFor(env)
	if err := s.pub.Publish(topic, payload, s.qos, retained); err != nil {
		s.logger.Warn("publishing push", "topic", topic, "error", err)
	}
}

func topicFor(env Envelope) (string, bool) {
	topics := mqtt.Topics{}
	switch env.Kind {
	case KindStatus:
		return topics.DeviceStatus(env.DeviceID), true
	case KindPtzPosition:
		return topics.PtzPosition(env.DeviceID), false
	case KindSoundPlayEnd:
		return topics.SoundPlayEnd(env.DeviceID), false
	case KindLightStatus:
		return topics.LightStatus(env.DeviceID), true
	default:
		return topics.DeviceReply(env.DeviceID), false
	}
}
