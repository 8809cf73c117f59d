// Package logging provides structured logging for the Orvibo bridge.
//
// This package wraps a global zap logger with convenience functions so the
// protocol and server packages can log without threading a logger through
// every call.
//
// # Log Levels
//
//   - Debug: Frame hex dumps, dispatch decisions
//   - Info: Connections, handshakes, state changes, orders
//   - Warn: Dropped frames, unknown devices, slow event subscribers
//   - Error: Listener failures, write errors
//
// # Structured Logging
//
//	logging.Info("Device identified",
//	    zap.String("conn_id", id),
//	    zap.String("uid", "807d3a1aefee"),
//	)
//
// Connection lifecycle:
//
//	logging.LogConnection(connID, remoteAddr, "connection_accepted")
//	logging.LogConnection(connID, remoteAddr, "connection_closed")
//
// Packet logging (enabled with log_packets):
//
//	logging.LogPayload(connID, "device->server", plaintext)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to ORVIBO_LOG_LEVEL and then to a no-op logger,
// which keeps CLI output clean.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned.
package logging
