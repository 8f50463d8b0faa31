// ABOUTME: Configuration loading and parsing for handoff-bridge
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file leaves a field empty.
const (
	DefaultHistoryLimit       = 50
	DefaultCloseFallbackDelay = 5 * time.Second
)

// Config represents the complete handoff-bridge configuration.
type Config struct {
	UI           UIConfig           `yaml:"ui"`
	Messages     MessagesConfig     `yaml:"messages"`
	History      HistoryConfig      `yaml:"history"`
	Session      SessionConfig      `yaml:"session"`
	Availability AvailabilityConfig `yaml:"availability"`
	Survey       SurveyConfig       `yaml:"survey"`
	Transcript   TranscriptConfig   `yaml:"transcript"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// UIConfig controls which bot UI buttons a live session reveals.
type UIConfig struct {
	ShowUploadButton bool `yaml:"show_upload_button"`
	ShowCloseButton  bool `yaml:"show_close_button"`
}

// MessagesConfig holds the user-visible system message texts.
type MessagesConfig struct {
	WaitingForAgent  string `yaml:"waiting_for_agent"`
	NoAgents         string `yaml:"no_agents"`
	SendFailed       string `yaml:"send_failed"`
	UploadNotAllowed string `yaml:"upload_not_allowed"`
	MediaPlaceholder string `yaml:"media_placeholder"`
}

// HistoryConfig bounds transcript reconciliation.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// SessionConfig holds session lifecycle timing.
type SessionConfig struct {
	CloseFallbackDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CloseFallbackDelayRaw string `yaml:"close_fallback_delay"`
}

// AvailabilityConfig holds the working-hours window for the availability
// probe. Hours are in the configured timezone; 0/0 means always open.
type AvailabilityConfig struct {
	HoursStart int    `yaml:"hours_start"`
	HoursEnd   int    `yaml:"hours_end"`
	Timezone   string `yaml:"timezone"`
}

// SurveyConfig controls the post-chat survey overlay.
type SurveyConfig struct {
	Enabled bool `yaml:"enabled"`
	// Template is markdown; %s is replaced with the survey URL.
	Template string `yaml:"template"`
}

// TranscriptConfig controls the download-transcript feature.
type TranscriptConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DatabaseConfig holds state store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
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

// Default returns a Config with all defaults applied, for embedders that
// configure the engine programmatically.
func Default() *Config {
	cfg := &Config{
		UI: UIConfig{ShowUploadButton: true, ShowCloseButton: true},
	}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.Session.CloseFallbackDelay == 0 {
		c.Session.CloseFallbackDelay = DefaultCloseFallbackDelay
	}
	if c.Messages.WaitingForAgent == "" {
		c.Messages.WaitingForAgent = "Please wait, an agent will be with you shortly."
	}
	if c.Messages.NoAgents == "" {
		c.Messages.NoAgents = "No agents are available right now. Please try again later."
	}
	if c.Messages.SendFailed == "" {
		c.Messages.SendFailed = "Your message could not be delivered. Tap to retry."
	}
	if c.Messages.UploadNotAllowed == "" {
		c.Messages.UploadNotAllowed = "This file type is not allowed."
	}
	if c.Messages.MediaPlaceholder == "" {
		c.Messages.MediaPlaceholder = "Sent a file."
	}
	if c.Survey.Template == "" {
		c.Survey.Template = "How did we do? [Rate your conversation](%s)."
	}
	if c.Availability.Timezone == "" {
		c.Availability.Timezone = "UTC"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all configuration fields are coherent. Returns an
// error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}
	if c.Session.CloseFallbackDelay < 0 {
		return fmt.Errorf("session.close_fallback_delay must not be negative")
	}
	if c.Availability.HoursStart < 0 || c.Availability.HoursStart > 23 {
		return fmt.Errorf("availability.hours_start must be between 0 and 23")
	}
	if c.Availability.HoursEnd < 0 || c.Availability.HoursEnd > 24 {
		return fmt.Errorf("availability.hours_end must be between 0 and 24")
	}
	if c.Availability.Timezone != "" {
		if _, err := time.LoadLocation(c.Availability.Timezone); err != nil {
			return fmt.Errorf("availability.timezone: %w", err)
		}
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Session.CloseFallbackDelayRaw != "" {
		cfg.Session.CloseFallbackDelay, err = time.ParseDuration(cfg.Session.CloseFallbackDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing close_fallback_delay %q: %w", cfg.Session.CloseFallbackDelayRaw, err)
		}
	}

	return nil
}
