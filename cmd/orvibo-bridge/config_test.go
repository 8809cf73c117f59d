package main

import (
	"path/filepath"
	"testing"

	"github.com/muurk/orvibo-bridge/internal/config"
)

func useConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	saved := configPath
	configPath = path
	t.Cleanup(func() {
		configPath = saved
		initKey, initForce = "", false
	})
	return path
}

func TestConfigInit(t *testing.T) {
	path := useConfigPath(t)
	t.Setenv(config.KeyEnvVar, "")

	initKey = "short"
	if err := runConfigInit(configInitCmd, nil); err == nil {
		t.Fatal("runConfigInit() with a short key should fail")
	}

	initKey = "khggd54865SNJHGF"
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("runConfigInit() error = %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PreSharedKey != initKey {
		t.Errorf("PreSharedKey = %q, want %q", cfg.PreSharedKey, initKey)
	}

	if err := runConfigInit(configInitCmd, nil); err == nil {
		t.Error("runConfigInit() over an existing file should fail without --force")
	}
	initForce = true
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Errorf("runConfigInit() with --force error = %v", err)
	}
}

func TestConfigNickname(t *testing.T) {
	path := useConfigPath(t)
	t.Setenv(config.KeyEnvVar, "")

	initKey = "khggd54865SNJHGF"
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("runConfigInit() error = %v", err)
	}

	// The environment key must not leak into the file
	t.Setenv(config.KeyEnvVar, "bbbbbbbbbbbbbbbb")
	if err := runConfigNickname(configNicknameCmd, []string{"abc123", "Bedroom blind"}); err != nil {
		t.Fatalf("runConfigNickname() error = %v", err)
	}

	cfg, err := config.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := cfg.Nickname("abc123"); got != "Bedroom blind" {
		t.Errorf("Nickname() = %q, want %q", got, "Bedroom blind")
	}
	if cfg.PreSharedKey != "khggd54865SNJHGF" {
		t.Errorf("PreSharedKey = %q, want the key from config init", cfg.PreSharedKey)
	}

	if err := runConfigNickname(configNicknameCmd, []string{"abc123"}); err != nil {
		t.Fatalf("runConfigNickname() clear error = %v", err)
	}
	cfg, err = config.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := cfg.Nickname("abc123"); got != "" {
		t.Errorf("Nickname() after clear = %q, want empty", got)
	}
}
