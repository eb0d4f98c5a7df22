package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the TrainDock server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dispatch   DispatchConfig
	Connectors ConnectorsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// DispatchConfig bounds every call routed through the connector manager.
type DispatchConfig struct {
	Timeout time.Duration
}

// ConnectorsConfig decides which connector candidates are registered at all
// and carries per-connector settings.
type ConnectorsConfig struct {
	Enabled []string
	Nebula  NebulaConfig
}

// NebulaConfig configures the cloud-GPU rental connector.
type NebulaConfig struct {
	BaseURL string
	Timeout time.Duration
}

var knownConnectors = map[string]bool{
	"local":  true,
	"nebula": true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRAINDOCK_PORT", 8080),
			Env:  envString("TRAINDOCK_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Dispatch: DispatchConfig{
			Timeout: envDurationSecs("TRAINDOCK_DISPATCH_TIMEOUT_SECS", 30*time.Second),
		},
		Connectors: ConnectorsConfig{
			Enabled: envList("TRAINDOCK_CONNECTORS", []string{"local"}),
			Nebula: NebulaConfig{
				BaseURL: envString("NEBULA_BASE_URL", ""),
				Timeout: envDuration("NEBULA_TIMEOUT", 30*time.Second),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConnectorEnabled reports whether the named connector should be registered.
func (c *Config) ConnectorEnabled(name string) bool {
	for _, enabled := range c.Connectors.Enabled {
		if enabled == name {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("TRAINDOCK_DISPATCH_TIMEOUT_SECS must be positive")
	}

	if len(c.Connectors.Enabled) == 0 {
		return fmt.Errorf("TRAINDOCK_CONNECTORS must enable at least one connector")
	}
	for _, name := range c.Connectors.Enabled {
		if !knownConnectors[name] {
			return fmt.Errorf("TRAINDOCK_CONNECTORS contains unknown connector %q; must be one of local, nebula", name)
		}
	}

	if c.ConnectorEnabled("nebula") {
		if c.Connectors.Nebula.BaseURL == "" {
			return fmt.Errorf("NEBULA_BASE_URL is required when the nebula connector is enabled")
		}
		if !strings.HasPrefix(c.Connectors.Nebula.BaseURL, "http://") &&
			!strings.HasPrefix(c.Connectors.Nebula.BaseURL, "https://") {
			return fmt.Errorf("NEBULA_BASE_URL must start with http:// or https://, got %q", c.Connectors.Nebula.BaseURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
