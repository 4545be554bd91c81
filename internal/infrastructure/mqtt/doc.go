// Package mqtt provides MQTT client connectivity for the echo control core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on echocontrol/system/status
//
// Device pushes are published under echocontrol/device/{id}/... and JSON
// commands arrive on echocontrol/command/{id}. See Topics for the layout.
//
// # Security Considerations
//
//   - Enable TLS for anything other than a local broker (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := mqtt.Topics{}.CommandDevice(topic)
//	        log.Printf("command for %s: %s", id, payload)
//	        return nil
//	    })
package mqtt
