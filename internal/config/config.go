package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	AllocatorSQL   = "sql"
	AllocatorRedis = "redis"

	maxZones = 64
)

// Config models distline.yml.
type Config struct {
	Board      BoardConfig      `yaml:"board" json:"board"`
	Visibility VisibilityConfig `yaml:"visibility" json:"visibility"`
	Production ProductionConfig `yaml:"production" json:"production"`
	Webhooks   []WebhookConfig  `yaml:"webhooks" json:"webhooks,omitempty"`
}

type BoardConfig struct {
	Zones int `yaml:"zones" json:"zones"`
}

type VisibilityConfig struct {
	// UnrestrictedAgents see every line like an admin but keep agent
	// write rights.
	UnrestrictedAgents []string `yaml:"unrestricted_agents" json:"unrestricted_agents,omitempty"`
}

type ProductionConfig struct {
	Allocator    string `yaml:"allocator" json:"allocator"`
	RedisURL     string `yaml:"redis_url" json:"redis_url,omitempty"`
	SequenceName string `yaml:"sequence_name" json:"sequence_name,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Board.Zones < 1 || c.Board.Zones > maxZones {
		return fmt.Errorf("config.board.zones must be between 1 and %d", maxZones)
	}
	for _, id := range c.Visibility.UnrestrictedAgents {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.visibility.unrestricted_agents contains empty actor id")
		}
	}
	switch c.Production.Allocator {
	case AllocatorSQL:
	case AllocatorRedis:
		if strings.TrimSpace(c.Production.RedisURL) == "" {
			return fmt.Errorf("config.production.redis_url is required for the redis allocator")
		}
	default:
		return fmt.Errorf("config.production.allocator must be %q or %q", AllocatorSQL, AllocatorRedis)
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %d has invalid url %q", i, hook.URL)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Unrestricted reports whether an agent is configured to see every line.
func (c *Config) Unrestricted(actorID string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Visibility.UnrestrictedAgents, actorID)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "distline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	cfg.Board.Zones = 12
	cfg.Production.Allocator = AllocatorSQL
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `board:
  # number of zones shown for unscheduled lines
  zones: 12

visibility:
  unrestricted_agents: []

production:
  # sql: counter row in the workspace database
  # redis: shared INCR counter for several server instances
  allocator: sql
  sequence_name: production

webhooks: []
`
