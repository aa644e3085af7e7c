package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM     LLMConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StorageConfig holds the conversation database configuration
type StorageConfig struct {
	// Path is the SQLite database file. Empty means "conversations.db"
	// in the working directory.
	Path string `mapstructure:"path"`
	// BusyTimeoutMS is passed to the driver as _busy_timeout.
	BusyTimeoutMS int `mapstructure:"busy_timeout_ms"`
	// ListLimit caps how many conversations a single list call returns.
	ListLimit int `mapstructure:"list_limit"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	DefaultDBPath        = "conversations.db"
	DefaultBusyTimeoutMS = 10000
	DefaultListLimit     = 50
)

// Load loads the configuration from config.yaml, or from the file named by
// the CONFIG_PATH environment variable when set.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.Storage.applyDefaults()

	return &config, nil
}

func (s *StorageConfig) applyDefaults() {
	if s.Path == "" {
		s.Path = DefaultDBPath
	}
	if s.BusyTimeoutMS <= 0 {
		s.BusyTimeoutMS = DefaultBusyTimeoutMS
	}
	if s.ListLimit <= 0 {
		s.ListLimit = DefaultListLimit
	}
}
