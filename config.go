package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the cache server.
type Config struct {
	// Server settings
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Concurrency / resource bounds
	MaxClients     int           `mapstructure:"max_clients"`
	ClientTimeout  time.Duration `mapstructure:"client_timeout"`
	HashCapacity   int           `mapstructure:"hash_capacity"`
	ReadChunkBytes int           `mapstructure:"read_chunk_bytes"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Metrics
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           11211,
		MaxClients:     4,
		ClientTimeout:  60 * time.Second,
		HashCapacity:   16,
		ReadChunkBytes: 1024,
		LogLevel:       "info",
		LogFormat:      "text",
		MetricsAddr:    "",
	}
}

// LoadConfig loads configuration from a config file, environment variables,
// and command line flags, in that order of increasing precedence.
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("gofast-cache")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/gofast-cache/")
	viper.AddConfigPath("$HOME/.gofast-cache")

	viper.SetEnvPrefix("GOFAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("host", config.Host)
	viper.SetDefault("port", config.Port)
	viper.SetDefault("max_clients", config.MaxClients)
	viper.SetDefault("client_timeout", config.ClientTimeout)
	viper.SetDefault("hash_capacity", config.HashCapacity)
	viper.SetDefault("read_chunk_bytes", config.ReadChunkBytes)
	viper.SetDefault("log_level", config.LogLevel)
	viper.SetDefault("log_format", config.LogFormat)
	viper.SetDefault("metrics_addr", config.MetricsAddr)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}

	if c.MaxClients < 1 {
		return fmt.Errorf("max_clients must be at least 1")
	}

	if c.HashCapacity < 1 {
		return fmt.Errorf("hash_capacity must be at least 1")
	}

	if c.ReadChunkBytes < 1 {
		return fmt.Errorf("read_chunk_bytes must be at least 1")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"text", "json"}
	validFormat := false
	for _, format := range validLogFormats {
		if c.LogFormat == format {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid log_format: %s (must be one of: %s)",
			c.LogFormat, strings.Join(validLogFormats, ", "))
	}

	return nil
}

// String returns a one-line summary of the config.
func (c *Config) String() string {
	return fmt.Sprintf("gofast-cache %s:%d, max_clients=%d, client_timeout=%v",
		c.Host, c.Port, c.MaxClients, c.ClientTimeout)
}
