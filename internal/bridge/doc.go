// Package bridge connects Swidget device sessions to MQTT and InfluxDB.
//
// The bridge maintains one swidget.Device session per configured device and
// translates in both directions:
//
//	device push  → swidget/event/{id}   (event envelope, per channel message)
//	device state → swidget/state/{id}   (retained realtime-values snapshot)
//	session up   → swidget/availability/{id} (retained online/offline)
//	MQTT command → device               (swidget/command/{id})
//
// A periodic telemetry loop refreshes every session and records power draw,
// sensor readings, and signal strength to InfluxDB when configured.
//
// # Usage
//
//	b, err := bridge.New(bridge.Options{
//	    Config:    cfg,
//	    Publisher: mqttAdapter,
//	    Metrics:   influxClient,
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
//
// # Thread Safety
//
// All methods are safe for concurrent use. Observers and MQTT handlers run
// on library goroutines; the bridge serializes nothing beyond what the
// session and MQTT client already guarantee.
package bridge
