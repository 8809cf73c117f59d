package discovery

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// Advertisement describes how the bridge announces itself
type Advertisement struct {
	// Instance defaults to "orvibo-bridge-<hostname>"
	Instance string
	Port     int
	APIPort  int
	Version  string
}

// Advertiser keeps an mDNS registration alive until Shutdown
type Advertiser struct {
	server *zeroconf.Server
}

// DefaultInstance returns the instance name used when none is configured
func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "orvibo-bridge"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return "orvibo-bridge-" + host
}

// TXT returns the TXT records for the advertisement
func (a Advertisement) TXT() []string {
	txt := []string{txtVersion + "=" + a.Version}
	if a.APIPort > 0 {
		txt = append(txt, txtAPIPort+"="+strconv.Itoa(a.APIPort))
	}
	return txt
}

// Advertise registers the bridge on all multicast interfaces
func Advertise(a Advertisement) (*Advertiser, error) {
	if a.Port <= 0 || a.Port > 65535 {
		return nil, fmt.Errorf("invalid advertised port: %d", a.Port)
	}
	if a.Instance == "" {
		a.Instance = DefaultInstance()
	}

	server, err := zeroconf.Register(a.Instance, ServiceType, ServiceDomain, a.Port, a.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertiser) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}
