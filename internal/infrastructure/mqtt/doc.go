// Package mqtt provides the broker connection used by the hellod state
// bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained state
//   - Subscriptions, restored after reconnect
//   - A Last Will on hello/system/status for offline detection
//
// # Topics
//
//	hello/state/<device>/val     retained register value, decimal text
//	hello/command/<device>/val   new value, applied like a write to the attribute
//	hello/system/status          online/offline JSON, retained
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.RegisterCommand("hello"), 1,
//	    func(topic string, payload []byte) error {
//	        return apply(payload)
//	    })
package mqtt
