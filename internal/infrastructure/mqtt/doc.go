// Package mqtt provides MQTT client connectivity for blktagd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	blktag/system/status     retained online/offline status (and LWT)
//	blktag/probe/result      summary after every full probe
//	blktag/device/<name>     retained tags of one device
//	blktag/command/probe     request a full re-probe
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.ProbeCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        return reprobe(ctx)
//	    })
package mqtt
