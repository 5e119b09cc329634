package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./smartsync.db" {
			t.Errorf("expected database path ./smartsync.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Storage.Backend != "file" {
			t.Errorf("expected file storage backend, got %s", config.Storage.Backend)
		}

		if config.Scheduler.Interval() != 15*time.Minute {
			t.Errorf("expected 15m interval, got %v", config.Scheduler.Interval())
		}

		if config.Scheduler.SettleDelay() != 10*time.Second {
			t.Errorf("expected 10s settle delay, got %v", config.Scheduler.SettleDelay())
		}

		if config.Scheduler.Cooldown() != 5*time.Minute {
			t.Errorf("expected 5m cooldown, got %v", config.Scheduler.Cooldown())
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[storage]
backend = "redis"
redis_addr = "10.0.0.1:6379"

[media_server]
url = "http://media.local:8096"
api_token = "secret"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Storage.Backend != "redis" {
			t.Errorf("expected redis backend, got %s", config.Storage.Backend)
		}

		if config.MediaServer.APIToken != "secret" {
			t.Errorf("expected api token secret, got %s", config.MediaServer.APIToken)
		}

		if config.Scheduler.IntervalMinutes != 15 {
			t.Errorf("missing keys should keep defaults, got interval %d", config.Scheduler.IntervalMinutes)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("SMARTSYNC_API_TOKEN", "from-env")
		t.Setenv("SMARTSYNC_STORAGE_BACKEND", "sqlite")
		t.Setenv("SMARTSYNC_PORT", "9090")

		config := DefaultConfig()
		if err := ApplyEnv(config); err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}

		if config.MediaServer.APIToken != "from-env" {
			t.Errorf("expected api token from-env, got %s", config.MediaServer.APIToken)
		}
		if config.Storage.Backend != "sqlite" {
			t.Errorf("expected sqlite backend, got %s", config.Storage.Backend)
		}
		if config.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", config.Server.Port)
		}
		if config.Database.Path != "./smartsync.db" {
			t.Errorf("unset variables should not change config, got %s", config.Database.Path)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.Storage.Backend = "mongo"
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}

		config = DefaultConfig()
		config.Scheduler.IntervalMinutes = 0
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for zero interval, got %v", err)
		}
	})
}
