// Package config provides configuration loading and validation for the bot.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig returns the config BY VALUE so callers cannot mutate
// shared state; all changes go through LoadConfig.
//
// Secrets (Slack tokens) are never stored in the YAML file. They are read
// from the environment at load time.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Env var names for secrets.
const (
	EnvSlackAppToken = "SLACK_APP_TOKEN"
	EnvSlackBotToken = "SLACK_BOT_TOKEN"
)

// Config is the root configuration for the onboarding bot.
type Config struct {
	DatabasePath string         `yaml:"database_path"`
	GitHub       GitHubConfig   `yaml:"github"`
	Chat         ChatConfig     `yaml:"chat"`
	Slack        SlackConfig    `yaml:"slack"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	EventLog     EventLogConfig `yaml:"eventlog"`
}

// GitHubConfig holds directory lookup and team membership settings.
type GitHubConfig struct {
	Org            string `yaml:"org"`
	TraineesTeam   string `yaml:"trainees_team"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the bounded timeout applied to every external call.
func (g *GitHubConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// ChatConfig holds conversation-level settings.
type ChatConfig struct {
	// GeneralChannel receives the announcement when a trainee onboards.
	GeneralChannel string `yaml:"general_channel"`
	DefaultMentor  string `yaml:"default_mentor"`
}

// SlackConfig holds Socket Mode connection settings. Tokens come from the
// environment, not from the file.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	AppToken string `yaml:"-"`
	BotToken string `yaml:"-"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// EventLogConfig controls the transition audit log.
type EventLogConfig struct {
	Dir           string `yaml:"dir"`
	RotationHours int    `yaml:"rotation_hours"`
}

//nolint:gochecknoglobals // intentional singleton, guarded by mu
var (
	config *Config
	mu     sync.RWMutex
)

// defaults returns a Config populated with workable defaults so a missing
// or partial file still yields a runnable bot.
func defaults() Config {
	return Config{
		DatabasePath: "trainees.db",
		GitHub: GitHubConfig{
			TraineesTeam:   "trainees",
			TimeoutSeconds: 30,
		},
		Chat: ChatConfig{
			GeneralChannel: "general-information",
			DefaultMentor:  "NO_MENTOR",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		EventLog: EventLogConfig{
			Dir:           "logs/events",
			RotationHours: 24,
		},
	}
}

// LoadConfig reads the YAML file at path, applies environment secrets,
// validates and installs the result as the global config.
func LoadConfig(path string) error {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Slack.AppToken = os.Getenv(EnvSlackAppToken)
	cfg.Slack.BotToken = os.Getenv(EnvSlackBotToken)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	mu.Lock()
	defer mu.Unlock()
	config = &cfg
	return nil
}

// SetConfig installs a config directly. Intended for tests and for the
// default-config startup path when no file exists.
func SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	config = &cfg
	return nil
}

// GetConfig returns a copy of the current config. LoadConfig or SetConfig
// must have been called first.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded")
	}
	return *config, nil
}

// Validate checks invariants that the rest of the system relies on.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.GitHub.Org == "" {
		return fmt.Errorf("github.org is required")
	}
	if c.GitHub.TraineesTeam == "" {
		return fmt.Errorf("github.trainees_team is required")
	}
	if c.Chat.GeneralChannel == "" {
		return fmt.Errorf("chat.general_channel is required")
	}
	if c.Slack.Enabled {
		if c.Slack.AppToken == "" {
			return fmt.Errorf("%s must be set when slack is enabled", EnvSlackAppToken)
		}
		if c.Slack.BotToken == "" {
			return fmt.Errorf("%s must be set when slack is enabled", EnvSlackBotToken)
		}
	}
	return nil
}
