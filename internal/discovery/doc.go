// Package discovery announces and finds orvibo-bridge instances over mDNS.
//
// A running bridge registers the "_orvibo-bridge._tcp" service with its
// device port. TXT records carry the build version and, when the control API
// is enabled, its port:
//
//	version=1.2.0
//	api_port=8089
//
// orvibo-ctl uses the Scanner to locate a bridge without a configured
// address.
//
// # Usage Example
//
//	adv, err := discovery.Advertise(discovery.Advertisement{Port: 10001, APIPort: 8089, Version: version.Version})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adv.Shutdown()
//
//	bridges, err := discovery.ScanForBridges(ctx, 3*time.Second)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridge and client must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
