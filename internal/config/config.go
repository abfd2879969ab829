// Package config provides configuration for the session relay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xiaot623/gogo/sessionrelay/internal/relay"
)

// Config holds the session relay configuration.
type Config struct {
	// Server settings
	HTTPPort        int
	ShutdownTimeout time.Duration

	// Upstream completion service
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Relay settings
	RelayMode       string
	RelayMaxRetries int
	RelayBackoff    time.Duration

	// Transcript archive, empty disables it
	ArchiveDSN string

	// Send policy file, empty uses the built-in policy
	PolicyFile string

	// Logging
	LogLevel  string
	LogPretty bool

	// Metrics
	MetricsEnabled bool

	// Live feed
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
}

var defaults = map[string]interface{}{
	"http_port":           8080,
	"shutdown_timeout_ms": 10000,
	"llm_base_url":        "http://localhost:8013",
	"llm_api_key":         "",
	"llm_model":           "",
	"llm_timeout_ms":      60000,
	"relay_mode":          "",
	"relay_max_retries":   0,
	"relay_backoff_ms":    200,
	"archive_dsn":         "",
	"policy_file":         "",
	"log_level":           "info",
	"log_pretty":          false,
	"metrics_enabled":     true,
	"ws_ping_interval_ms": 30000,
	"ws_write_timeout_ms": 10000,
}

// Load loads configuration from defaults, an optional config file and
// environment variables, in increasing precedence. Environment variables
// are the upper-cased keys, e.g. HTTP_PORT or LLM_TIMEOUT_MS.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:        v.GetInt("http_port"),
		ShutdownTimeout: millis(v, "shutdown_timeout_ms"),
		LLMBaseURL:      v.GetString("llm_base_url"),
		LLMAPIKey:       v.GetString("llm_api_key"),
		LLMModel:        v.GetString("llm_model"),
		LLMTimeout:      millis(v, "llm_timeout_ms"),
		RelayMode:       v.GetString("relay_mode"),
		RelayMaxRetries: v.GetInt("relay_max_retries"),
		RelayBackoff:    millis(v, "relay_backoff_ms"),
		ArchiveDSN:      v.GetString("archive_dsn"),
		PolicyFile:      v.GetString("policy_file"),
		LogLevel:        v.GetString("log_level"),
		LogPretty:       v.GetBool("log_pretty"),
		MetricsEnabled:  v.GetBool("metrics_enabled"),
		WSPingInterval:  millis(v, "ws_ping_interval_ms"),
		WSWriteTimeout:  millis(v, "ws_write_timeout_ms"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port must be between 1 and 65535, got %d", c.HTTPPort))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("llm_timeout_ms must be positive"))
	}
	if c.RelayMaxRetries < 0 || c.RelayMaxRetries > relay.MaxRetries {
		errs = append(errs, fmt.Errorf("relay_max_retries must be between 0 and %d, got %d", relay.MaxRetries, c.RelayMaxRetries))
	}
	if c.RelayBackoff < 0 {
		errs = append(errs, errors.New("relay_backoff_ms must not be negative"))
	}
	if c.WSPingInterval <= 0 {
		errs = append(errs, errors.New("ws_ping_interval_ms must be positive"))
	}
	if c.WSWriteTimeout <= 0 {
		errs = append(errs, errors.New("ws_write_timeout_ms must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout_ms must be positive"))
	}
	if mode := strings.ToLower(c.RelayMode); mode != "" && mode != "mock" {
		errs = append(errs, fmt.Errorf("relay_mode must be empty or \"mock\", got %q", c.RelayMode))
	}
	if !c.MockRelay() {
		if u, err := url.Parse(c.LLMBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("llm_base_url must be an absolute URL, got %q", c.LLMBaseURL))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MockRelay reports whether replies come from the built-in mock.
func (c *Config) MockRelay() bool {
	return strings.EqualFold(c.RelayMode, "mock")
}

// ArchiveEnabled reports whether ended sessions are archived.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveDSN != ""
}
