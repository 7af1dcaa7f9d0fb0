// ABOUTME: Configuration loading and parsing for guildgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"
	"gopkg.in/yaml.v3"
)

// Config represents the complete guildgate configuration
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Presence PresenceConfig `yaml:"presence"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DiscordConfig holds the bot credentials and startup behavior
type DiscordConfig struct {
	Token     string `yaml:"token"`
	AutoStart bool   `yaml:"auto_start"`
}

// GatewayConfig holds gateway lifecycle tuning
type GatewayConfig struct {
	RestartCooldown time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RestartCooldownRaw string `yaml:"restart_cooldown"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PresenceConfig holds the default presence applied after connecting
type PresenceConfig struct {
	Activity string `yaml:"activity"`
	Type     string `yaml:"type"`
	Status   string `yaml:"status"`
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

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
// The token comes from the DISCORD_BOT_TOKEN environment variable.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			Token:     os.Getenv("DISCORD_BOT_TOKEN"),
			AutoStart: true,
		},
		Database: DatabaseConfig{Path: "guildgate.db"},
		Presence: PresenceConfig{
			Activity: "VaniDEV Dashboard",
			Type:     "watching",
			Status:   "online",
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Presence.Type != "" {
		if _, err := ActivityType(c.Presence.Type); err != nil {
			return err
		}
	}

	switch c.Presence.Status {
	case "", "online", "idle", "dnd", "invisible":
	default:
		return fmt.Errorf("presence.status %q is not one of online, idle, dnd, invisible", c.Presence.Status)
	}

	return nil
}

// ActivityType maps a presence activity type name onto the platform enum.
func ActivityType(name string) (discordgo.ActivityType, error) {
	switch name {
	case "", "playing":
		return discordgo.ActivityTypeGame, nil
	case "streaming":
		return discordgo.ActivityTypeStreaming, nil
	case "listening":
		return discordgo.ActivityTypeListening, nil
	case "watching":
		return discordgo.ActivityTypeWatching, nil
	case "competing":
		return discordgo.ActivityTypeCompeting, nil
	default:
		return 0, fmt.Errorf("presence.type %q is not a known activity type", name)
	}
}

// StatusData builds the presence update sent after each connect.
func (c *Config) StatusData() discordgo.UpdateStatusData {
	data := discordgo.UpdateStatusData{Status: c.Presence.Status}
	if data.Status == "" {
		data.Status = "online"
	}
	if c.Presence.Activity != "" {
		activityType, err := ActivityType(c.Presence.Type)
		if err != nil {
			activityType = discordgo.ActivityTypeGame
		}
		data.Activities = []*discordgo.Activity{{
			Name: c.Presence.Activity,
			Type: activityType,
		}}
	}
	return data
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.RestartCooldownRaw != "" {
		cfg.Gateway.RestartCooldown, err = time.ParseDuration(cfg.Gateway.RestartCooldownRaw)
		if err != nil {
			return fmt.Errorf("parsing restart_cooldown %q: %w", cfg.Gateway.RestartCooldownRaw, err)
		}
	}

	return nil
}
