package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge represents an orvibo-bridge instance found on the network
type Bridge struct {
	// Instance is the mDNS instance name (e.g., "orvibo-bridge-livingroom")
	Instance string

	// Hostname is the mDNS hostname (e.g., "livingroom.local.")
	Hostname string

	// IP is the advertised address, IPv4 preferred
	IP string

	// Port is the device-facing TCP port (typically 10001)
	Port int

	// APIPort is the control API port, 0 when the API is not exposed
	APIPort int

	// Version is the bridge build version
	Version string

	// Metadata contains all mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Orvibo bridge %s (%s) at %s", b.Instance, b.Hostname, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)))
}

// DeviceAddr returns the address devices should connect to
func (b *Bridge) DeviceAddr() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// APIURL returns the control API base URL, or "" when none is advertised
func (b *Bridge) APIURL() string {
	if b.APIPort == 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(b.IP, strconv.Itoa(b.APIPort))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
