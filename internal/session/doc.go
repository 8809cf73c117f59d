// Package session keeps per-connection protocol state for the bridge.
//
// A Store is owned by one server instance. It is both the session store
// (keyed by the internal connection ID) and the connection registry used to
// address a device by its UID. Sessions are copied in and out under a
// single lock, so connection goroutines and order senders never share
// session memory.
package session
