// Package config loads server settings from a JSON file.  A missing or
// unreadable file is not an error: the server falls back to the defaults
// below so it can run with no config at all.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DataDir       string `mapstructure:"data_dir"`
	MaxSendQueue  int    `mapstructure:"max_send_queue"`
	HistoryOnJoin int    `mapstructure:"history_on_join"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          7777,
		DataDir:       "./data",
		MaxSendQueue:  256,
		HistoryOnJoin: 20,
	}
}

// Load reads the JSON config file at path.  Any failure to read or parse the
// file yields the defaults together with the error, so callers can log and
// keep going.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(path)

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 7777)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("max_send_queue", 256)
	v.SetDefault("history_on_join", 20)

	if err := v.ReadInConfig(); err != nil {
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Addr returns the host:port pair the server should listen on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
