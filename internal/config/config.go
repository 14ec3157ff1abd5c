package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Audio   AudioConfig   `yaml:"audio"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds
	WriteTimeout    int    `yaml:"write_timeout"`    // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// AudioConfig contains audio decoding parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
}

// StorageConfig selects and configures the metadata store
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // postgres connection string

	MaxConns    int32 `yaml:"max_conns"`
	MinConns    int32 `yaml:"min_conns"`
	MaxConnLife int   `yaml:"max_conn_life"` // seconds
	MaxConnIdle int   `yaml:"max_conn_idle"` // seconds
}

// EventsConfig contains the MQTT batch event publisher configuration
type EventsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Topic      string `yaml:"topic"`
	BufferSize int    `yaml:"buffer_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8000,
			Address:         "0.0.0.0",
			MaxBodyBytes:    32 << 20,
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Audio: AudioConfig{
			SampleRate: 4000,
		},
		Storage: StorageConfig{
			Driver:      "sqlite",
			Path:        "audio_metadata.db",
			MaxConns:    10,
			MinConns:    1,
			MaxConnLife: 3600,
			MaxConnIdle: 300,
		},
		Events: EventsConfig{
			Enabled:    false,
			Broker:     "tcp://localhost:1883",
			ClientID:   "audio-ingest-service",
			Topic:      "audio/sessions/{session_id}/ingested",
			BufferSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error; the service then runs on defaults and environment alone.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv overrides file values with environment variables.
// DATABASE holds the storage location for whichever driver is selected.
func (c *Config) applyEnv() error {
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE"); v != "" {
		if c.Storage.Driver == "postgres" {
			c.Storage.DSN = v
		} else {
			c.Storage.Path = v
		}
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT must be an integer, got '%s'", v)
		}
		c.HTTP.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Events.Broker = v
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.MaxBodyBytes < 1024 {
		return fmt.Errorf("max_body_bytes must be at least 1024 bytes, got %d", h.MaxBodyBytes)
	}

	if h.ReadTimeout < 1 || h.WriteTimeout < 1 {
		return fmt.Errorf("read_timeout and write_timeout must be at least 1 second")
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 4000 {
		return fmt.Errorf("sample_rate must be 4000 Hz, got %d", a.SampleRate)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "sqlite":
		if s.Path == "" {
			return fmt.Errorf("path cannot be empty for sqlite driver")
		}
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("dsn cannot be empty for postgres driver")
		}
		if s.MaxConns < 1 {
			return fmt.Errorf("max_conns must be at least 1, got %d", s.MaxConns)
		}
		if s.MinConns < 0 || s.MinConns > s.MaxConns {
			return fmt.Errorf("min_conns must be between 0 and max_conns (%d), got %d", s.MaxConns, s.MinConns)
		}
	default:
		return fmt.Errorf("driver must be 'sqlite' or 'postgres', got '%s'", s.Driver)
	}

	return nil
}

// Validate validates events configuration
func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	if e.Broker == "" {
		return fmt.Errorf("broker cannot be empty when events are enabled")
	}

	if e.Topic == "" {
		return fmt.Errorf("topic cannot be empty when events are enabled")
	}

	if e.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be at least 1, got %d", e.BufferSize)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetMaxConnLife returns the postgres connection lifetime as a time.Duration
func (s *StorageConfig) GetMaxConnLife() time.Duration {
	return time.Duration(s.MaxConnLife) * time.Second
}

// GetMaxConnIdle returns the postgres idle timeout as a time.Duration
func (s *StorageConfig) GetMaxConnIdle() time.Duration {
	return time.Duration(s.MaxConnIdle) * time.Second
}

// Location returns the storage location for the selected driver
func (s *StorageConfig) Location() string {
	if s.Driver == "postgres" {
		return s.DSN
	}
	return s.Path
}
