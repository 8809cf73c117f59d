package session

import (
	"time"

	"github.com/muurk/orvibo-bridge/internal/protocol"
)

// PlaceholderName is the display name given to a device at handshake when no
// nickname is configured. The protocol never reports a name.
const PlaceholderName = "unknown"

// Session is the per-connection protocol state. The store hands out copies;
// mutate through Store.Update.
type Session struct {
	ConnectionID string
	RemoteAddr   string

	UID     string
	Name    string
	ModelID string
	State   int
	Serial  protocol.Serial

	// Key is the session key generated at hello; empty until then
	Key string
	// CorrelationID is generated at hello and sent in every server frame
	CorrelationID string

	// Generated on the first order and reused for the life of the connection
	ClientSessionID string
	DeviceID        string

	ConnectedAt  time.Time
	IdentifiedAt time.Time
	LastSeen     time.Time
}

// KeyEstablished reports whether the hello exchange has happened
func (s Session) KeyEstablished() bool {
	return s.Key != ""
}

// Identified reports whether the device has told us its UID
func (s Session) Identified() bool {
	return s.UID != ""
}

// Phase names the implicit protocol state of the session
func (s Session) Phase() string {
	switch {
	case !s.KeyEstablished():
		return "unauthenticated"
	case !s.Identified():
		return "key-established"
	case s.LastSeen.After(s.IdentifiedAt):
		return "active"
	default:
		return "identified"
	}
}

// DeviceInfo is the externally visible view of a device
type DeviceInfo struct {
	UID      string    `json:"uid"`
	Name     string    `json:"name"`
	State    int       `json:"state"`
	ModelID  string    `json:"modelId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

func (s Session) info(online bool) DeviceInfo {
	return DeviceInfo{
		UID:      s.UID,
		Name:     s.Name,
		State:    s.State,
		ModelID:  s.ModelID,
		Online:   online,
		LastSeen: s.LastSeen,
	}
}
