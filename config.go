package flowgate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	DefaultProvider string        `yaml:"default_provider"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	EnvFiles        []string      `yaml:"env_files"`
	Log             LogConfig     `yaml:"log"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		IdleTimeout:  120 * time.Second,
		MaxBodyBytes: 20 << 20,
		CORSOrigins:  []string{"*"},
		EnvFiles:     []string{".env"},
		Log:          LogConfig{Level: "info"},
	}
}

// LoadConfig reads and parses a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("flowgate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("flowgate: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("flowgate: config: listen_addr is required")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("flowgate: config: idle_timeout must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("flowgate: config: request_timeout must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("flowgate: config: max_body_bytes must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("flowgate: config: invalid log level %q", c.Log.Level)
	}
	return nil
}
