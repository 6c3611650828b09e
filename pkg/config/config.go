package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging      LoggingConfig `mapstructure:"logging"`
	Agent        AgentConfig   `mapstructure:"agent"`
	Stream       StreamConfig  `mapstructure:"stream"`
	History      HistoryConfig `mapstructure:"history"`
	ShowThinking bool          `mapstructure:"show_thinking"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// AgentConfig describes the remote agent streaming endpoint
type AgentConfig struct {
	BaseURL    string            `mapstructure:"base_url"`
	StreamPath string            `mapstructure:"stream_path"`
	Collection string            `mapstructure:"collection"`
	Headers    map[string]string `mapstructure:"headers"`
	Timeout    time.Duration     `mapstructure:"-"`
	TimeoutStr string            `mapstructure:"timeout"` // For parsing string duration
}

// StreamConfig holds client-side stream handling policy
type StreamConfig struct {
	IdleTimeout    time.Duration `mapstructure:"-"`
	IdleTimeoutStr string        `mapstructure:"idle_timeout"` // For parsing string duration
	ReadBuffer     int           `mapstructure:"read_buffer"`
	RetrievalTools []string      `mapstructure:"retrieval_tools"`
}

// HistoryConfig controls conversation persistence between CLI runs
type HistoryConfig struct {
	File string `mapstructure:"file"`
}

// DefaultRetrievalTools names the tools whose output carries document citations
var DefaultRetrievalTools = []string{"rag", "retrieval", "search_documents"}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Set replaces the global config instance (useful for testing)
func Set(c *Config) {
	cfg = c
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.turnstream")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, "turnstream"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("TURNSTREAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and environment still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	if len(loaded.Stream.RetrievalTools) == 0 {
		loaded.Stream.RetrievalTools = append([]string(nil), DefaultRetrievalTools...)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("show_thinking", true)

	viper.SetDefault("agent.base_url", "http://localhost:8000")
	viper.SetDefault("agent.stream_path", "/api/v1/conversations/chat/stream")
	viper.SetDefault("agent.collection", "")
	viper.SetDefault("agent.timeout", "0s")

	viper.SetDefault("stream.idle_timeout", "0s")
	viper.SetDefault("stream.read_buffer", 4096)
	viper.SetDefault("stream.retrieval_tools", DefaultRetrievalTools)

	viper.SetDefault("logging.log_file", "./.turnstream/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("history.file", "./.turnstream/conversation.json")
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("agent.base_url", "TURNSTREAM_AGENT_URL")
	viper.BindEnv("agent.collection", "TURNSTREAM_COLLECTION")
	viper.BindEnv("agent.timeout", "TURNSTREAM_AGENT_TIMEOUT")
	viper.BindEnv("stream.idle_timeout", "TURNSTREAM_IDLE_TIMEOUT")
	viper.BindEnv("logging.level", "TURNSTREAM_LOG_LEVEL")
	viper.BindEnv("logging.log_file", "TURNSTREAM_LOG_FILE")
	viper.BindEnv("history.file", "TURNSTREAM_HISTORY_FILE")

	// Configuration directory override
	viper.BindEnv("config.path", "TURNSTREAM_CONFIG_DIR")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.Agent.TimeoutStr != "" {
		d, err := time.ParseDuration(c.Agent.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid agent.timeout: %w", err)
		}
		c.Agent.Timeout = d
	}

	if c.Stream.IdleTimeoutStr != "" {
		d, err := time.ParseDuration(c.Stream.IdleTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid stream.idle_timeout: %w", err)
		}
		c.Stream.IdleTimeout = d
	}

	if c.Agent.Timeout < 0 || c.Stream.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	return nil
}

// StreamURL returns the full URL of the agent streaming endpoint
func (c *Config) StreamURL() string {
	base := strings.TrimRight(c.Agent.BaseURL, "/")
	path := c.Agent.StreamPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
