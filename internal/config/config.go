// ABOUTME: Configuration loading and parsing for beacon
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete beacon configuration
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Generation  GenerationConfig `yaml:"generation"`
	Messaging   MessagingConfig  `yaml:"messaging"`
	Publishers  PublishersConfig `yaml:"publishers"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Defaults    DefaultsConfig   `yaml:"defaults"`
	Logging     LoggingConfig    `yaml:"logging"`
	Environment string           `yaml:"environment"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GenerationConfig holds chat model configuration for content generation
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Region      string  `yaml:"region"`
	Temperature float32 `yaml:"temperature"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// MessagingConfig holds the outbound WhatsApp transport configuration
type MessagingConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

// PublishersConfig holds platform publishing credentials
type PublishersConfig struct {
	Facebook  FacebookConfig  `yaml:"facebook"`
	Instagram InstagramConfig `yaml:"instagram"`
	LinkedIn  LinkedInConfig  `yaml:"linkedin"`
}

// FacebookConfig holds Facebook page credentials
type FacebookConfig struct {
	PageID      string `yaml:"page_id"`
	AccessToken string `yaml:"access_token"`
}

// InstagramConfig holds Instagram business account credentials
type InstagramConfig struct {
	BusinessID  string `yaml:"business_id"`
	AccessToken string `yaml:"access_token"`
}

// LinkedInConfig holds LinkedIn credentials
type LinkedInConfig struct {
	AuthorURN   string `yaml:"author_urn"`
	AccessToken string `yaml:"access_token"`
}

// SchedulerConfig holds worker pool and run timing configuration
type SchedulerConfig struct {
	Workers    int `yaml:"workers"`
	QueueSize  int `yaml:"queue_size"`
	MaxClients int `yaml:"max_clients"`

	RunTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RunTimeoutRaw string `yaml:"run_timeout"`
}

// DefaultsConfig holds per-run stage defaults
type DefaultsConfig struct {
	NumIdeas int `yaml:"num_ideas"`
	NumPosts int `yaml:"num_posts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the values a minimal config file leaves out.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.QueueSize == 0 {
		c.Scheduler.QueueSize = 64
	}
	if c.Scheduler.RunTimeout == 0 {
		c.Scheduler.RunTimeout = 20 * time.Second
	}
	if c.Defaults.NumIdeas == 0 {
		c.Defaults.NumIdeas = 3
	}
	if c.Defaults.NumPosts == 0 {
		c.Defaults.NumPosts = 3
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 60 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Generation.TimeoutRaw != "" {
		cfg.Generation.Timeout, err = time.ParseDuration(cfg.Generation.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing generation.timeout %q: %w", cfg.Generation.TimeoutRaw, err)
		}
	}

	if cfg.Scheduler.RunTimeoutRaw != "" {
		cfg.Scheduler.RunTimeout, err = time.ParseDuration(cfg.Scheduler.RunTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing scheduler.run_timeout %q: %w", cfg.Scheduler.RunTimeoutRaw, err)
		}
	}

	return nil
}
