// Package config loads and saves the bridge configuration file.
//
// The configuration is a YAML file stored in a platform-appropriate location:
//   - Linux: $XDG_CONFIG_HOME/orvibo-bridge/config.yaml or $HOME/.config/orvibo-bridge/config.yaml
//   - macOS: $HOME/.config/orvibo-bridge/config.yaml
//   - Windows: %LOCALAPPDATA%\orvibo-bridge\config.yaml
//
// A missing file is not an error; Load returns the defaults. The bridge
// refuses to start until Validate passes, which requires a 16-byte
// pre-shared key from the file, the ORVIBO_KEY environment variable or the
// --key flag.
//
// # Example
//
//	version: 1
//	pre_shared_key: khggd54865SNJHGF
//	listen:
//	  host: ""
//	  port: 10001
//	  keepalive: 10s
//	api:
//	  addr: 127.0.0.1:8089
//	log_level: info
//	advertise: true
//	devices:
//	  abc123:
//	    nickname: Bedroom blind
//
// Save writes through a temporary file and a rename, so a crash never leaves
// a truncated config behind.
package config
