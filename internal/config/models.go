package config

import (
	"net"
	"strconv"
	"time"
)

const (
	// CurrentVersion is the config file schema version
	CurrentVersion = 1

	// KeySize is the required pre-shared key length in bytes
	KeySize = 16

	DefaultHost      = ""
	DefaultPort      = 10001
	DefaultKeepAlive = 10 * time.Second
	DefaultAPIAddr   = "127.0.0.1:8089"
	DefaultLogLevel  = "info"
)

// Config is the bridge configuration file.
type Config struct {
	Version      int                `yaml:"version"`
	PreSharedKey string             `yaml:"pre_shared_key,omitempty"`
	Listen       Listen             `yaml:"listen"`
	API          API                `yaml:"api"`
	LogLevel     string             `yaml:"log_level,omitempty"`
	LogPackets   bool               `yaml:"log_packets,omitempty"` // log decrypted payloads at info
	Advertise    bool               `yaml:"advertise"`             // announce the bridge over mDNS
	Devices      map[string]*Device `yaml:"devices,omitempty"`     // keyed by device UID
}

// Listen is the device-facing TCP listener.
type Listen struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	KeepAlive time.Duration `yaml:"keepalive"`
}

// Addr returns host:port for net.Listen
func (l Listen) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// API is the local control API. An empty Addr disables it.
type API struct {
	Addr string `yaml:"addr"`
}

// Device holds user metadata for a single device.
type Device struct {
	Nickname string `yaml:"nickname,omitempty"`
}

// New returns a Config with default values and no key.
func New() *Config {
	return &Config{
		Version: CurrentVersion,
		Listen: Listen{
			Host:      DefaultHost,
			Port:      DefaultPort,
			KeepAlive: DefaultKeepAlive,
		},
		API:       API{Addr: DefaultAPIAddr},
		LogLevel:  DefaultLogLevel,
		Advertise: true,
		Devices:   make(map[string]*Device),
	}
}

// Nickname returns the configured display name for a device UID, or "".
func (c *Config) Nickname(uid string) string {
	if c == nil || c.Devices == nil {
		return ""
	}
	if d := c.Devices[uid]; d != nil {
		return d.Nickname
	}
	return ""
}

// SetNickname creates or updates the nickname of a device. An empty
// nickname removes the device entry.
func (c *Config) SetNickname(uid, nickname string) {
	if nickname == "" {
		delete(c.Devices, uid)
		return
	}
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}
	d := c.Devices[uid]
	if d == nil {
		d = &Device{}
		c.Devices[uid] = d
	}
	d.Nickname = nickname
}

// Nicknames returns a copy of all configured nicknames keyed by UID.
func (c *Config) Nicknames() map[string]string {
	out := make(map[string]string, len(c.Devices))
	for uid, d := range c.Devices {
		if d != nil && d.Nickname != "" {
			out[uid] = d.Nickname
		}
	}
	return out
}
