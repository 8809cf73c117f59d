package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "orvibo-bridge"
	configFile = "config.yaml"

	// KeyEnvVar overrides the pre-shared key from the file
	KeyEnvVar = "ORVIBO_KEY"
)

// ErrMissingKey is returned by Validate when no pre-shared key is configured.
var ErrMissingKey = errors.New("pre-shared key is not configured")

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
//   - Linux: $XDG_CONFIG_HOME/orvibo-bridge or $HOME/.config/orvibo-bridge
//   - macOS: $HOME/.config/orvibo-bridge
//   - Windows: %LOCALAPPDATA%\orvibo-bridge
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// DefaultPath returns the full path to the default configuration file.
func DefaultPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load reads the configuration from path. An empty path means DefaultPath.
// A missing file yields the defaults. The ORVIBO_KEY environment variable,
// when set, replaces the key from the file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv(KeyEnvVar); key != "" {
		cfg.PreSharedKey = key
	}
	return cfg, nil
}

// Read is Load without environment overrides. Use it when the result is
// saved back to the file.
func Read(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := New()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if cfg.Version != CurrentVersion {
			return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
		}
	}

	if cfg.Devices == nil {
		cfg.Devices = make(map[string]*Device)
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = DefaultPort
	}
	if cfg.Listen.KeepAlive == 0 {
		cfg.Listen.KeepAlive = DefaultKeepAlive
	}
	return cfg, nil
}

// Validate checks the settings the bridge cannot start without and
// normalises the log level.
func (c *Config) Validate() error {
	if c.PreSharedKey == "" {
		return fmt.Errorf("%w: set pre_shared_key, %s or --key", ErrMissingKey, KeyEnvVar)
	}
	if len(c.PreSharedKey) != KeySize {
		return fmt.Errorf("pre-shared key must be %d bytes, got %d", KeySize, len(c.PreSharedKey))
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port: %d", c.Listen.Port)
	}
	if c.Listen.KeepAlive < 0 {
		return fmt.Errorf("invalid keepalive: %s", c.Listen.KeepAlive)
	}
	// Empty stays empty so logging can fall back to its environment variable
	if c.LogLevel != "" {
		level, err := ParseLogLevel(c.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	return nil
}

// ParseLogLevel normalises a log level name. Empty means the default.
func ParseLogLevel(level string) (string, error) {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "":
		return DefaultLogLevel, nil
	case "debug", "info", "warn", "error":
		return l, nil
	default:
		return "", fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", level)
	}
}

// Save writes the configuration to path atomically. An empty path means
// DefaultPath.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Orvibo bridge configuration
#
# pre_shared_key is the 16-byte key baked into the device firmware.
# It can also be supplied with the ` + KeyEnvVar + ` environment variable.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
