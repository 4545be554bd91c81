//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/echo-control-core/internal/infrastructure/config"
)

// Integration tests against a live broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("echocontrol-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("echocontrol-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	received := make(chan string, 1)
	var once sync.Once
	err = sub.Subscribe(Topics{}.AllCommands(), 1, func(topic string, p []byte) error {
		id, ok := Topics{}.CommandDevice(topic)
		if ok {
			once.Do(func() { received <- id + " " + string(p) })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(Topics{}.Command("0x01000201"), []byte(`{"op":"light.switch","on":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if want := `0x01000201 {"op":"light.switch","on":true}`; msg != want {
			t.Errorf("received %q, want %q", msg, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for command")
	}
}

func TestIntegration_RetainedStatus(t *testing.T) {
	c, err := Connect(integrationConfig("echocontrol-int-retained"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	topic := Topics{}.DeviceStatus("0x7F000101")
	if err := c.PublishRetained(topic, []byte(`{"state":"ONLINE"}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	got := make(chan string, 1)
	if err := c.Subscribe(topic, 1, func(_ string, p []byte) error {
		select {
		case got <- string(p):
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-got:
		if msg != `{"state":"ONLINE"}` {
			t.Errorf("retained = %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for retained message")
	}
}
