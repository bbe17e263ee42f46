// Package config loads the chatctl configuration file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
)

// Config is the chatctl configuration.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Account AccountConfig `toml:"account"`
	Logging LoggingConfig `toml:"logging"`
}

// ServiceConfig addresses the chat service.
type ServiceConfig struct {
	BaseURL        string   `toml:"base_url"`
	RealtimeURL    string   `toml:"realtime_url"`
	RequestTimeout Duration `toml:"request_timeout"`
	DialTimeout    Duration `toml:"dial_timeout"`
	RateLimit      float64  `toml:"rate_limit"`
}

// AccountConfig holds the credentials used by login.
type AccountConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	// Handle selects the identity commands act as. Defaults to the
	// account's default identity.
	Handle string `toml:"handle"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: Duration{10 * time.Second},
			DialTimeout:    Duration{10 * time.Second},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultPath returns the config file path under XDG_CONFIG_HOME.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "chatctl", "config.toml")
}

// Load reads the config at path over the defaults, expanding ${VAR}
// references. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return cfg, cfg.Validate()
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(name)
	})
}

// Validate checks field formats. Credentials are checked by the commands
// that need them.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.Service.BaseURL == "" {
		errs = errs.Append("service.base_url", fmt.Errorf("is required"))
	} else if err := checkURL(c.Service.BaseURL, "http", "https"); err != nil {
		errs = errs.Append("service.base_url", err)
	}
	if c.Service.RealtimeURL != "" {
		if err := checkURL(c.Service.RealtimeURL, "ws", "wss"); err != nil {
			errs = errs.Append("service.realtime_url", err)
		}
	}
	if c.Service.RequestTimeout.Duration < 0 {
		errs = errs.Append("service.request_timeout", fmt.Errorf("must not be negative"))
	}
	if c.Service.DialTimeout.Duration < 0 {
		errs = errs.Append("service.dial_timeout", fmt.Errorf("must not be negative"))
	}
	if c.Service.RateLimit < 0 {
		errs = errs.Append("service.rate_limit", fmt.Errorf("must not be negative"))
	}
	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			errs = errs.Append("logging.level", err)
		}
	}

	return errs.ToError()
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("must use %s scheme", strings.Join(schemes, " or "))
}
