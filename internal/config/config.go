// ABOUTME: Configuration loading and parsing for session-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

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
	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength is the shortest accepted auth.jwt_secret.
const MinJWTSecretLength = 32

// Rate limit store backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Config represents the complete session-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	LiveKit   LiveKitConfig   `yaml:"livekit" toml:"livekit"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Webhook   WebhookConfig   `yaml:"webhook" toml:"webhook"`
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve HTTPS on :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds actor authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LiveKitConfig holds the signing key pair for join credentials.
// Leaving the keys empty disables credential issuance at request time.
type LiveKitConfig struct {
	URL       string `yaml:"url" toml:"url"`
	APIKey    string `yaml:"api_key" toml:"api_key"`
	APISecret string `yaml:"api_secret" toml:"api_secret"`
}

// AgentConfig holds the remote voice-agent dispatch endpoint
type AgentConfig struct {
	WebhookURL    string        `yaml:"webhook_url" toml:"webhook_url"`
	APIKey        string        `yaml:"api_key" toml:"api_key"`
	RetryAttempts int           `yaml:"retry_attempts" toml:"retry_attempts"`
	Timeout       time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// BackendConfig holds the content and homework backend
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// WebhookConfig holds inbound agent webhook settings
type WebhookConfig struct {
	Secret            string        `yaml:"secret" toml:"secret"`
	Workers           int           `yaml:"workers" toml:"workers"`
	QueueSize         int           `yaml:"queue_size" toml:"queue_size"`
	GenerationTimeout time.Duration `yaml:"-" toml:"-"`

	GenerationTimeoutRaw string `yaml:"generation_timeout" toml:"generation_timeout"`
}

// RateLimitConfig selects the limiter's state store
type RateLimitConfig struct {
	Backend string      `yaml:"backend" toml:"backend"`
	Redis   RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// DefaultPath returns the config file location.
// Priority: SESSION_GATEWAY_CONFIG > XDG_CONFIG_HOME/session-gateway/gateway.yaml > ~/.config/session-gateway/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv("SESSION_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "session-gateway", "gateway.yaml")
}

// DefaultDataPath returns the data directory.
// Priority: XDG_DATA_HOME/session-gateway > ~/.local/share/session-gateway
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "session-gateway")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = RateLimitMemory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
// Upstream endpoints and LiveKit keys are optional here; the operations that
// need them report a configuration error per request instead.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if (c.LiveKit.APIKey == "") != (c.LiveKit.APISecret == "") {
		return fmt.Errorf("livekit.api_key and livekit.api_secret must be set together")
	}

	for name, raw := range map[string]string{
		"livekit.url":       c.LiveKit.URL,
		"agent.webhook_url": c.Agent.WebhookURL,
		"backend.base_url":  c.Backend.BaseURL,
	} {
		if err := validateURL(name, raw, name == "livekit.url"); err != nil {
			return err
		}
	}

	if c.Agent.RetryAttempts < 0 {
		return fmt.Errorf("agent.retry_attempts must not be negative")
	}
	if c.Webhook.Workers < 0 {
		return fmt.Errorf("webhook.workers must not be negative")
	}
	if c.Webhook.QueueSize < 0 {
		return fmt.Errorf("webhook.queue_size must not be negative")
	}

	switch c.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RateLimit.Redis.Addr == "" {
			return fmt.Errorf("ratelimit.redis.addr is required when ratelimit.backend is redis")
		}
	default:
		return fmt.Errorf("ratelimit.backend must be %q or %q, got %q", RateLimitMemory, RateLimitRedis, c.RateLimit.Backend)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// validateURL accepts an empty value or an absolute http(s) URL. LiveKit
// clients connect over websockets, so ws and wss are allowed when ws is set.
func validateURL(name, raw string, ws bool) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws", "wss":
		if !ws {
			return fmt.Errorf("%s must use http or https scheme", name)
		}
	default:
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agent.timeout", cfg.Agent.TimeoutRaw, &cfg.Agent.Timeout},
		{"backend.timeout", cfg.Backend.TimeoutRaw, &cfg.Backend.Timeout},
		{"webhook.generation_timeout", cfg.Webhook.GenerationTimeoutRaw, &cfg.Webhook.GenerationTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
