package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sidekick-relay/internal/models"
)

const (
	defaultHost                  = "127.0.0.1"
	defaultPort                  = 8787
	defaultEndpointBase          = "http://localhost:1234"
	defaultModel                 = "local-model"
	defaultDialTimeout           = 10 * time.Second
	defaultResponseHeaderTimeout = 2 * time.Minute
	defaultHistoryLimit          = 20
	defaultSubscriberBuffer      = 256
	defaultLogLevel              = "info"
	defaultLogFormat             = "auto"
	defaultLogMaxSizeMB          = 10
	defaultLogMaxBackups         = 3
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig holds the defaults applied to request descriptors that leave
// fields blank, and the transport timeouts for the backend connection.
type BackendConfig struct {
	EndpointBase          string        `yaml:"endpoint_base"`
	Model                 string        `yaml:"model"`
	SystemPrompt          string        `yaml:"system_prompt"`
	Protocol              string        `yaml:"protocol"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// Apply fills blank descriptor fields from the backend defaults. The system
// prompt is not touched: an empty one is a valid request, so callers decide
// whether theirs was supplied (see SystemPromptOr).
func (b BackendConfig) Apply(desc models.RequestDescriptor) models.RequestDescriptor {
	if strings.TrimSpace(desc.EndpointBase) == "" {
		desc.EndpointBase = b.EndpointBase
	}
	if strings.TrimSpace(desc.Model) == "" {
		desc.Model = b.Model
	}
	if strings.TrimSpace(string(desc.Protocol)) == "" {
		desc.Protocol = models.Protocol(b.Protocol)
	}
	return desc
}

// SystemPromptOr returns *supplied when the caller sent a system prompt, even
// an empty one, and the configured default otherwise.
func (b BackendConfig) SystemPromptOr(supplied *string) string {
	if supplied != nil {
		return *supplied
	}
	return b.SystemPrompt
}

// RelayConfig tunes the session coordinator.
type RelayConfig struct {
	HistoryLimit     int `yaml:"history_limit"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns a configuration usable without a file.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads YAML configuration from disk, applies defaults and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}

	if c.Backend.EndpointBase == "" {
		c.Backend.EndpointBase = defaultEndpointBase
	}
	if c.Backend.Model == "" {
		c.Backend.Model = defaultModel
	}
	if c.Backend.Protocol == "" {
		c.Backend.Protocol = string(models.ProtocolChatCompletions)
	}
	if c.Backend.DialTimeout == 0 {
		c.Backend.DialTimeout = defaultDialTimeout
	}
	if c.Backend.ResponseHeaderTimeout == 0 {
		c.Backend.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}

	if c.Relay.HistoryLimit == 0 {
		c.Relay.HistoryLimit = defaultHistoryLimit
	}
	if c.Relay.SubscriberBuffer == 0 {
		c.Relay.SubscriberBuffer = defaultSubscriberBuffer
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = defaultLogMaxBackups
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if err := validateEndpoint(c.Backend.EndpointBase); err != nil {
		return err
	}
	if strings.TrimSpace(c.Backend.Model) == "" {
		return fmt.Errorf("backend.model must not be empty")
	}
	if err := validateProtocol(c.Backend.Protocol); err != nil {
		return err
	}
	if c.Backend.DialTimeout < 0 {
		return fmt.Errorf("backend.dial_timeout must not be negative, got %s", c.Backend.DialTimeout)
	}
	if c.Backend.ResponseHeaderTimeout < 0 {
		return fmt.Errorf("backend.response_header_timeout must not be negative, got %s", c.Backend.ResponseHeaderTimeout)
	}

	if c.Relay.HistoryLimit < 2 || c.Relay.HistoryLimit%2 != 0 {
		return fmt.Errorf("relay.history_limit must be an even number of at least 2, got %d", c.Relay.HistoryLimit)
	}
	if c.Relay.SubscriberBuffer < 1 {
		return fmt.Errorf("relay.subscriber_buffer must be positive, got %d", c.Relay.SubscriberBuffer)
	}

	return validateLogging(c.Logging)
}

func validateEndpoint(base string) error {
	if strings.TrimSpace(base) == "" {
		return fmt.Errorf("backend.endpoint_base must not be empty")
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return fmt.Errorf("backend.endpoint_base %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.endpoint_base %q must use http or https", base)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.endpoint_base %q must include a host", base)
	}
	return nil
}

func validateProtocol(protocol string) error {
	switch models.Protocol(protocol) {
	case models.ProtocolChatCompletions, models.ProtocolResponses:
		return nil
	default:
		return fmt.Errorf("backend.protocol %q must be one of %q or %q", protocol, models.ProtocolChatCompletions, models.ProtocolResponses)
	}
}

func validateLogging(l LoggingConfig) error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn or error", l.Level)
	}
	switch l.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be one of auto, json or text", l.Format)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_backups must not be negative")
	}
	return nil
}
