// Package config handles TaskBuddy configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/taskbuddy/internal/theme"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/taskbuddy/config.yaml, /etc/taskbuddy/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskbuddy", "config.yaml"))
	}

	paths = append(paths, "/etc/taskbuddy/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all TaskBuddy configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"` // text or json
	Timezone    string            `yaml:"timezone"`   // IANA name; empty = system local
	Assistant   AssistantConfig   `yaml:"assistant"`
	Theme       ThemeConfig       `yaml:"theme"`
	Invitations InvitationsConfig `yaml:"invitations"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AssistantConfig tunes the command interpreter.
type AssistantConfig struct {
	// Name is how the assistant introduces itself in the greeting.
	Name string `yaml:"name"`

	// ReferenceYear anchors month/day dates that carry no year
	// ("July 8th"). Default 2025.
	ReferenceYear int `yaml:"reference_year"`

	// PersistTranscripts archives every turn to SQLite in addition to
	// the in-memory session log.
	PersistTranscripts bool `yaml:"persist_transcripts"`
}

// ThemeConfig holds the theme applied before any user choice is stored.
type ThemeConfig struct {
	Default string `yaml:"default"`
}

// InvitationsConfig controls team invitation delivery. Invitations are
// recorded in the team directory regardless; mail is only sent when
// SMTP.Host is set.
type InvitationsConfig struct {
	From   string     `yaml:"from"`
	AppURL string     `yaml:"app_url"`
	SMTP   SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds outbound mail server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
}

// Configured reports whether outbound invitation mail is enabled.
func (c InvitationsConfig) Configured() bool {
	return c.SMTP.Host != ""
}

// MQTTConfig defines the optional MQTT notification publisher.
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // e.g. mqtts://broker.local:8883
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"`
	BaseTopic  string `yaml:"base_topic"`

	// DiscoveryPrefix is the Home Assistant discovery prefix. Empty
	// disables sensor discovery.
	DiscoveryPrefix    string `yaml:"discovery_prefix"`
	PublishIntervalSec int    `yaml:"publish_interval"`
	// EventsPerMinute caps forwarded bus events; extra events are dropped.
	EventsPerMinute int `yaml:"events_per_minute"`
}

// Configured reports whether an MQTT broker has been set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Assistant.Name == "" {
		c.Assistant.Name = "TaskBuddy"
	}
	if c.Assistant.ReferenceYear == 0 {
		c.Assistant.ReferenceYear = 2025
	}
	if c.Theme.Default == "" {
		c.Theme.Default = "light"
	}

	// SMTP defaults: port 587 with STARTTLS.
	if c.Invitations.SMTP.Host != "" {
		if c.Invitations.SMTP.Port == 0 {
			c.Invitations.SMTP.Port = 587
		}
		if !c.Invitations.SMTP.StartTLS && c.Invitations.SMTP.Port != 465 {
			c.Invitations.SMTP.StartTLS = true
		}
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.DeviceName == "" {
			c.MQTT.DeviceName = "taskbuddy"
		}
		if c.MQTT.BaseTopic == "" {
			c.MQTT.BaseTopic = "taskbuddy/" + c.MQTT.DeviceName
		}
		if c.MQTT.PublishIntervalSec <= 0 {
			c.MQTT.PublishIntervalSec = 60
		}
		if c.MQTT.EventsPerMinute <= 0 {
			c.MQTT.EventsPerMinute = 120
		}
	}
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q must be text or json", c.LogFormat)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
	}
	if _, ok := theme.DefaultCatalog().Lookup(c.Theme.Default); !ok {
		return fmt.Errorf("theme.default %q is not a known theme key", c.Theme.Default)
	}
	if c.Assistant.ReferenceYear < 1970 || c.Assistant.ReferenceYear > 9999 {
		return fmt.Errorf("assistant.reference_year %d out of range", c.Assistant.ReferenceYear)
	}
	if c.Invitations.Configured() {
		if c.Invitations.From == "" {
			return fmt.Errorf("invitations.from is required when invitations.smtp.host is set")
		}
		if c.Invitations.SMTP.Port < 1 || c.Invitations.SMTP.Port > 65535 {
			return fmt.Errorf("invitations.smtp.port %d out of range (1-65535)", c.Invitations.SMTP.Port)
		}
	}
	return nil
}

// Location resolves the configured time zone, falling back to the
// process local zone when unset.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
