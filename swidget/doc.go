// Package swidget is a client library for Swidget smart-home power devices
// (outlets, switches, dimmers, timer switches).
//
// A Device is a session with one device at a known address. It reconciles
// two transports — point-to-point HTTP calls against the device's embedded
// web server and an optional persistent websocket channel — over a single
// in-memory mirror of the device's declared capability tree.
//
// # Usage
//
//	device := swidget.New(swidget.Config{
//		Host:         "192.168.1.40",
//		SecretKey:    "secret",
//		UseTLS:       true,
//		UseWebsocket: true,
//	})
//	if err := device.Start(ctx); err != nil {
//		// handle
//	}
//	defer device.Stop()
//
//	device.AddObserver("log", func(msg swidget.Message) {
//		// every inbound channel message, in delivery order
//	})
//	err := device.TurnOn(ctx)
//
// # State model
//
// The device describes itself as two assemblies: the host (the base unit)
// and the insert (the removable module). Each assembly owns components, and
// each component exposes named functions whose values are small structured
// payloads. The mirror is built once from the device summary, with function
// key sets fixed at that point, and is then patched by partial state
// payloads — over HTTP or pushed via the websocket.
//
// # Concurrency
//
// All exported methods are safe for concurrent use. Inbound websocket
// messages are dispatched by a single consumer goroutine, preserving the
// device's delivery order; observers are invoked synchronously within that
// goroutine, after routing completes.
//
// # Errors
//
// All failures surface as the typed sentinel errors in errors.go, wrapped
// with context; branch with errors.Is. Stop never returns an error — both
// teardown steps are attempted and the boolean result reports whether both
// succeeded.
package swidget
