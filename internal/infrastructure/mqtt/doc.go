// Package mqtt provides MQTT client connectivity for the Gray Logic Z-Wave
// service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain control
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament for offline detection
//
// # Architecture
//
// The Z-Wave bridge talks to Gray Logic Core only over MQTT:
//
//	Z-Wave gateway ↔ zwave bridge ↔ MQTT broker ↔ Gray Logic Core
//
// Commands arrive on graylogic/command/zwave/{node}; state, acks and health
// leave on the matching state/ack/health topics (see Topics).
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommand("zwave", "+"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s = %s", topic, payload)
//	        return nil
//	    })
//
// Tests that need a broker are behind the "integration" build tag.
package mqtt
