// Package mqtt provides MQTT client connectivity for the Swidget bridge.
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
// The bridge uses MQTT to expose Swidget devices to home-automation
// consumers. Device state and events flow out; commands flow back in.
//
//	Swidget devices ↔ swidget-bridge ↔ MQTT Broker ↔ consumers
//
// # Topic scheme
//
//	swidget/state/{device_id}         retained realtime-values snapshot
//	swidget/event/{device_id}         channel messages in event envelopes
//	swidget/command/{device_id}       inbound commands forwarded to the device
//	swidget/availability/{device_id}  retained online/offline
//	swidget/system/status             bridge status + LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        // forward to device session
//	        return nil
//	    })
package mqtt
