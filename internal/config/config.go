package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tingly-dev/tea-assistant/internal/guardrails"
	"github.com/tingly-dev/tea-assistant/internal/obs"
	"github.com/tingly-dev/tea-assistant/internal/obs/otel"
	"github.com/tingly-dev/tea-assistant/internal/ratelimit"
	"github.com/tingly-dev/tea-assistant/internal/record"
	"github.com/tingly-dev/tea-assistant/internal/relay"
	"github.com/tingly-dev/tea-assistant/internal/tools"
)

// Environment variables that override the file.
const (
	EnvUpstreamBaseURL = "TEA_UPSTREAM_BASE_URL"
	EnvUpstreamAPIKey  = "TEA_UPSTREAM_API_KEY"
	EnvUpstreamModel   = "TEA_UPSTREAM_MODEL"
	EnvAdminJWTSecret  = "TEA_ADMIN_JWT_SECRET"
	EnvServerPort      = "TEA_SERVER_PORT"
)

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Debug        bool          `yaml:"debug"`

	// TrustedProxies may set X-Forwarded-For; empty means the peer address is the client
	TrustedProxies []string `yaml:"trusted_proxies"`
	// ErrorLogFilter is an expr expression selecting exchanges for the error log.
	// Empty keeps the default, failed /api/ calls.
	ErrorLogFilter string `yaml:"error_log_filter"`
}

// UpstreamConfig is the OpenAI-compatible provider.
type UpstreamConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	ProxyURL string        `yaml:"proxy_url"`
	Timeout  time.Duration `yaml:"timeout"`

	RecordMode string `yaml:"record_mode"`
	RecordDir  string `yaml:"record_dir"`
}

// RateLimitConfig is the per-client quota on /api/chat.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// AssistantConfig shapes the conversation sent upstream.
type AssistantConfig struct {
	SystemPrompt    string `yaml:"system_prompt"`
	ToolErrorFormat string `yaml:"tool_error_format"`
	Timezone        string `yaml:"timezone"`
}

// GuardrailsConfig extends the validator rules with an optional external rules file.
type GuardrailsConfig struct {
	guardrails.Config `yaml:",inline"`
	RulesFile         string `yaml:"rules_file"`
}

// StorageConfig is the chat record database.
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AdminConfig guards the staff API.
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Config is the whole server configuration.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Upstream   UpstreamConfig        `yaml:"upstream"`
	RateLimit  RateLimitConfig       `yaml:"rate_limit"`
	Assistant  AssistantConfig       `yaml:"assistant"`
	Guardrails GuardrailsConfig      `yaml:"guardrails"`
	SearchDocs []tools.Document      `yaml:"search_docs"`
	Storage    StorageConfig         `yaml:"storage"`
	Admin      AdminConfig           `yaml:"admin"`
	Metrics    otel.Config           `yaml:"metrics"`
	Log        obs.LogRotationConfig `yaml:"log"`

	ConfigFile string `yaml:"-"`
}

// Default returns a config rooted at dir (normally GetConfDir()).
func Default(dir string) *Config {
	return &Config{
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			ReadTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Model:     DefaultModel,
			Timeout:   DefaultUpstreamTimeout,
			RecordDir: filepath.Join(dir, RecordDirName),
		},
		RateLimit: RateLimitConfig{
			Requests: ratelimit.DefaultLimit,
			Window:   ratelimit.DefaultWindow,
		},
		Assistant: AssistantConfig{
			SystemPrompt:    relay.DefaultSystemPrompt,
			ToolErrorFormat: relay.DefaultToolErrorFormat,
			Timezone:        tools.DefaultTimezone,
		},
		Guardrails: GuardrailsConfig{Config: guardrails.DefaultConfig()},
		SearchDocs: tools.DefaultDocuments,
		Storage: StorageConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, DatabaseFileName),
			RetentionDays: DefaultRetentionDays,
		},
		Metrics:    otel.DefaultConfig(),
		Log:        obs.DefaultLogRotationConfig(filepath.Join(dir, LogDirName, LogFileName)),
		ConfigFile: filepath.Join(dir, ConfigFileName),
	}
}

// Load reads path over the defaults and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile()
	}
	cfg := Default(filepath.Dir(path))
	cfg.ConfigFile = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logrus.Debugf("Config file %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.loadRulesFile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvUpstreamBaseURL); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv(EnvUpstreamAPIKey); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv(EnvUpstreamModel); v != "" {
		c.Upstream.Model = v
	}
	if v := os.Getenv(EnvAdminJWTSecret); v != "" {
		c.Admin.JWTSecret = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvServerPort, v, err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) loadRulesFile() error {
	path := c.Guardrails.RulesFile
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(c.ConfigFile), path)
	}
	rules, err := guardrails.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load guardrails rules: %w", err)
	}
	c.Guardrails.Config = rules
	return nil
}

// Validate reports every problem that prevents the server from starting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		errs = append(errs, errors.New("upstream.api_key is required"))
	}
	if strings.TrimSpace(c.Upstream.Model) == "" {
		errs = append(errs, errors.New("upstream.model is required"))
	}
	if _, err := record.ParseMode(c.Upstream.RecordMode); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Requests <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage is enabled"))
	}
	if _, err := guardrails.New(c.Guardrails.Config); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr is host:port for the listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Reloadable is the part of the config applied without restart.
type Reloadable struct {
	Guardrails   guardrails.Config
	SystemPrompt string
	RateLimit    RateLimitConfig
}

// Reloadable extracts the hot-reloadable settings.
func (c *Config) Reloadable() Reloadable {
	return Reloadable{
		Guardrails:   c.Guardrails.Config,
		SystemPrompt: c.Assistant.SystemPrompt,
		RateLimit:    c.RateLimit,
	}
}
