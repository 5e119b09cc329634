package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is the prefix for environment variable overrides (e.g. SMARTSYNC_API_TOKEN).
const EnvPrefix = "SMARTSYNC"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log         LogConfig         `toml:"log"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	MediaServer MediaServerConfig `toml:"media_server"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig contains database connection settings.
//
// The SQLite database always holds the refresh run log and, when the storage backend is "sqlite", the documents.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig selects the document store backend for smart lists and ignores.
type StorageConfig struct {
	Backend     string `toml:"backend"` // file, sqlite, redis
	DataDir     string `toml:"data_dir"`
	RedisAddr   string `toml:"redis_addr"`
	RedisDB     int    `toml:"redis_db"`
	RedisPrefix string `toml:"redis_prefix"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// MediaServerConfig contains the connection settings for the media server that owns
// the catalog and the synchronized playlists.
type MediaServerConfig struct {
	URL            string  `toml:"url"`
	APIToken       string  `toml:"api_token"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// SchedulerConfig contains the refresh trigger timings.
type SchedulerConfig struct {
	IntervalMinutes      int `toml:"interval_minutes"`
	LoginSettleSeconds   int `toml:"login_settle_seconds"`
	LoginCooldownMinutes int `toml:"login_cooldown_minutes"`
	QueueSize            int `toml:"queue_size"`
}

// Interval returns the periodic sweep interval.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// SettleDelay returns the delay between a session start and its refresh.
func (s SchedulerConfig) SettleDelay() time.Duration {
	return time.Duration(s.LoginSettleSeconds) * time.Second
}

// Cooldown returns the per-owner window suppressing repeated login refreshes.
func (s SchedulerConfig) Cooldown() time.Duration {
	return time.Duration(s.LoginCooldownMinutes) * time.Minute
}

// Timeout returns the media server request timeout.
func (m MediaServerConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// envOverrides lists the settings that may be supplied through the environment.
type envOverrides struct {
	LogLevel       string `envconfig:"LOG_LEVEL"`
	DatabasePath   string `envconfig:"DATABASE_PATH"`
	StorageBackend string `envconfig:"STORAGE_BACKEND"`
	DataDir        string `envconfig:"DATA_DIR"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	ServerURL      string `envconfig:"SERVER_URL"`
	APIToken       string `envconfig:"API_TOKEN"`
	Port           int    `envconfig:"PORT"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays SMARTSYNC_* environment variables onto the config.
func ApplyEnv(config *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if env.LogLevel != "" {
		config.Log.Level = env.LogLevel
	}
	if env.DatabasePath != "" {
		config.Database.Path = env.DatabasePath
	}
	if env.StorageBackend != "" {
		config.Storage.Backend = env.StorageBackend
	}
	if env.DataDir != "" {
		config.Storage.DataDir = env.DataDir
	}
	if env.RedisAddr != "" {
		config.Storage.RedisAddr = env.RedisAddr
	}
	if env.ServerURL != "" {
		config.MediaServer.URL = env.ServerURL
	}
	if env.APIToken != "" {
		config.MediaServer.APIToken = env.APIToken
	}
	if env.Port != 0 {
		config.Server.Port = env.Port
	}

	return nil
}

// Validate checks the config for values that would break the daemon at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: scheduler.interval_minutes must be positive", ErrInvalidConfig)
	}
	if c.Scheduler.LoginSettleSeconds < 0 || c.Scheduler.LoginCooldownMinutes < 0 {
		return fmt.Errorf("%w: scheduler delays cannot be negative", ErrInvalidConfig)
	}
	return nil
}
