// Package mqtt provides MQTT client connectivity for the implement daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The daemon mirrors its ISOBUS process data onto MQTT so that farm
// dashboards, recorders, and remote tooling can follow the implement
// without speaking ISO 11783. Commands flow the other way: a dashboard
// publishes to a command topic and the daemon applies it as if the task
// controller had sent it.
//
//	Implement Daemon ↔ MQTT Broker ↔ Dashboards / Recorders
//
// # Security Considerations
//
//   - TLS is required for off-machine deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for on-machine development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all inbound commands
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a process value
//	topic := mqtt.Topics{}.Value(2, 2)
//	client.Publish(topic, []byte(`{"value":95000}`), 1, true)
package mqtt
