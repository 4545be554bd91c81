package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/store"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
)

// SourceMQTT tags command log entries that arrived over MQTT.
const SourceMQTT = "mqtt"

// CommandMessage is a command received on echocontrol/command/{id}.
//
//	{"id":"c-1","op":"light.level","level":40}
type CommandMessage struct {
	// ID correlates the command with its AckMessage. Generated when empty.
	ID string `json:"id,omitempty"`

	// Source names the sender, e.g. "panel" or "scheduler".
	Source string `json:"source,omitempty"`

	supervisor.Command
}

// AckStatus is the outcome carried by an AckMessage.
type AckStatus string

// Ack statuses.
const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage is published on echocontrol/command/{id}/result for every
// command received.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Op        string    `json:"op,omitempty"`
	Status    AckStatus `json:"status"`
	Seq       uint32    `json:"seq,omitempty"`
	Code      uint32    `json:"code"`
	CodeName  string    `json:"code_name"`
	Error     string    `json:"error,omitempty"`
}

// Commander is the supervisor surface the ingress drives.
type Commander interface {
	HandleFor(id device.ID) (supervisor.Handle, bool)
	Execute(h supervisor.Handle, cmd supervisor.Command) (uint32, error)
}

// Subscriber is the MQTT subscription surface. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// CommandIngress executes JSON commands received over MQTT and publishes
// an acknowledgement for each.
type CommandIngress struct {
	cmd    Commander
	pub    Publisher
	log    store.CommandRepository
	qos    byte
	logger Logger
	now    func() time.Time
}

// NewCommandIngress creates an ingress. log may be nil to skip the command log.
func NewCommandIngress(cmd Commander, pub Publisher, log store.CommandRepository, qos byte, logger Logger) *CommandIngress {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandIngress{cmd: cmd, pub: pub, log: log, qos: qos, logger: logger, now: time.Now}
}

// Start subscribes to the command topic of every device.
func (in *CommandIngress) Start(sub Subscriber) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllCommands(), in.qos, in.Handle); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Handle processes one command message. It implements mqtt.MessageHandler.
//
// Failures after the topic is understood are reported in the AckMessage;
// the returned error only feeds the MQTT client's log.
func (in *CommandIngress) Handle(topic string, payload []byte) error {
	idText, ok := mqtt.Topics{}.CommandDevice(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	var msg CommandMessage
	var handle supervisor.Handle
	var seq uint32
	var err error

	switch id, perr := device.ParseID(idText); {
	case perr != nil:
		err = fmt.Errorf("%w: %w", ErrBadTopic, perr)
	case json.Unmarshal(payload, &msg) != nil:
		err = ErrBadPayload
	default:
		h, found := in.cmd.HandleFor(id)
		if !found {
			err = fmt.Errorf("%w: %s", supervisor.ErrDeviceNotFound, idText)
			break
		}
		handle = h
		seq, err = in.cmd.Execute(h, msg.Command)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	ack := in.ack(idText, msg, seq, err)
	in.record(handle, msg, ack)
	in.publish(idText, ack)

	if errors.Is(err, ErrBadTopic) || errors.Is(err, ErrBadPayload) {
		return err
	}
	return nil
}

func (in *CommandIngress) ack(deviceID string, msg CommandMessage, seq uint32, err error) AckMessage {
	code := supervisor.CodeOf(err)
	if errors.Is(err, ErrBadPayload) || errors.Is(err, ErrBadTopic) {
		code = protocol.CodeInvalidArgument
	}

	ack := AckMessage{
		CommandID: msg.ID,
		Timestamp: in.now().UTC(),
		DeviceID:  deviceID,
		Op:        msg.Op,
		Status:    AckAccepted,
		Seq:       seq,
		Code:      uint32(code),
		CodeName:  code.String(),
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Error = err.Error()
	}
	return ack
}

func (in *CommandIngress) record(h supervisor.Handle, msg CommandMessage, ack AckMessage) {
	if in.log == nil || msg.Op == "" {
		return
	}
	source := SourceMQTT
	if msg.Source != "" {
		source = SourceMQTT + ":" + msg.Source
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	rec := &store.CommandRecord{
		Handle:    int(h),
		Op:        msg.Op,
		Source:    source,
		Seq:       ack.Seq,
		Code:      ack.Code,
		Detail:    ack.Error,
		CreatedAt: ack.Timestamp,
	}
	if err := in.log.Create(ctx, rec); err != nil {
		in.logger.Warn("recording command", "op", msg.Op, "error", err)
	}
}

func (in *CommandIngress) publish(deviceID string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		in.logger.Error("encoding command ack", "error", err)
		return
	}
	if err := in.pub.Publish(mqtt.Topics{}.CommandResult(deviceID), payload, in.qos, false); err != nil {
		in.logger.Warn("publishing command ack", "device", deviceID, "error", err)
	}
}
