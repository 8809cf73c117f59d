// Package server implements the device-facing side of the Orvibo bridge.
//
// Devices open a plain TCP connection (default port 10001) and speak the
// framed, encrypted protocol from package protocol. The server owns the
// session store, runs one goroutine per connection and publishes typed
// events to an events.Bus.
//
// # Connection Lifecycle
//
// Each accepted connection gets a random connection ID and an empty session.
// Frames are then processed strictly in order:
//  1. hello (pk frame, pre-shared key): a session key is generated and
//     returned to the device
//  2. handshake: the device announces its UID; DeviceConnected is emitted
//  3. heartbeat and state reports: acknowledged, Heartbeat and StateChanged
//     are emitted
//
// Frames with a bad checksum, an undecryptable payload or a command that is
// not allowed in the current phase are logged and dropped. The connection
// stays open. A clean close emits DeviceDisconnected; a read or write error
// emits DeviceDisconnectedWithError with the final session.
//
// # Orders
//
// SendOrder addresses a device by UID and writes an encrypted set order on
// its connection. Writes from the read loop and from SendOrder are
// serialized per connection.
//
// # Usage Example
//
//	bus := events.NewBus()
//	srv, err := server.New(&server.Config{
//	    Port:         10001,
//	    PreSharedKey: "khggd54865SNJHGF",
//	    KeepAlive:    10 * time.Second,
//	}, bus)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until ctx is cancelled
//	go srv.Start(ctx)
//
//	_ = srv.SendOrder("abc123", "open", protocol.OrderValues{})
package server
