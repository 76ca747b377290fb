package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskflow.yml.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		BasePath       string   `yaml:"base_path"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Logging struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
	Redis struct {
		URL             string `yaml:"url"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		ChannelPrefix   string `yaml:"channel_prefix"`
	} `yaml:"redis"`
	Events struct {
		OutboxPath           string          `yaml:"outbox_path"`
		DrainIntervalSeconds int             `yaml:"drain_interval_seconds"`
		MaxRetries           int             `yaml:"max_retries"`
		Webhooks             []WebhookConfig `yaml:"webhooks"`
	} `yaml:"events"`
	Aggregates struct {
		OverdueSweepIntervalSeconds int `yaml:"overdue_sweep_interval_seconds"`
	} `yaml:"aggregates"`
	AI struct {
		Enabled        bool   `yaml:"enabled"`
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ai"`
	Plans map[string]int `yaml:"plans"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with tf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.logging.encoding must be json or console")
	}
	if c.Redis.CacheTTLSeconds < 0 {
		return fmt.Errorf("config.redis.cache_ttl_seconds must be >= 0")
	}
	if c.Events.DrainIntervalSeconds < 0 {
		return fmt.Errorf("config.events.drain_interval_seconds must be >= 0")
	}
	if c.Aggregates.OverdueSweepIntervalSeconds < 0 {
		return fmt.Errorf("config.aggregates.overdue_sweep_interval_seconds must be >= 0")
	}
	for i, hook := range c.Events.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.events.webhooks[%d].url is required", i)
		}
	}
	if c.AI.Enabled && strings.TrimSpace(c.AI.Model) == "" {
		return fmt.Errorf("config.ai.model is required when ai is enabled")
	}
	for plan, max := range c.Plans {
		switch plan {
		case "free", "pro", "enterprise":
		default:
			return fmt.Errorf("config.plans has unknown plan %s", plan)
		}
		if max < 1 && max != -1 {
			return fmt.Errorf("config.plans.%s must be >= 1 or -1", plan)
		}
	}
	return nil
}

// MaxUsers returns the user quota for a plan tier.
func (c *Config) MaxUsers(plan string) int {
	if c != nil {
		if v, ok := c.Plans[plan]; ok {
			return v
		}
	}
	switch plan {
	case "pro":
		return 50
	case "enterprise":
		return -1
	default:
		return 5
	}
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) DrainInterval() time.Duration {
	if c.Events.DrainIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Events.DrainIntervalSeconds) * time.Second
}

func (c *Config) OverdueSweepInterval() time.Duration {
	if c.Aggregates.OverdueSweepIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Aggregates.OverdueSweepIntervalSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  allowed_origins: []

logging:
  level: info
  encoding: json

redis:
  url: ""
  cache_ttl_seconds: 3600
  channel_prefix: taskflow

events:
  outbox_path: ""
  drain_interval_seconds: 30
  max_retries: 5
  webhooks: []

aggregates:
  overdue_sweep_interval_seconds: 300

ai:
  enabled: false
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  timeout_seconds: 30

plans:
  free: 5
  pro: 50
  enterprise: -1
`
