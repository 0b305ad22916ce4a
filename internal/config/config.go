// Package config provides configuration management for dtfd.
package config

import (
	"encoding/json"
	"os"
)

// Config holds the dtfd server configuration (spec.md §6, extended with the
// ambient fields a TCP server always carries).
type Config struct {
	// Server settings
	Host string `json:"host"`
	Port int    `json:"port"`

	// Persistence
	DTFFolder     string `json:"dtf_folder"`
	Autoflush     bool   `json:"autoflush"`
	FlushInterval int    `json:"flush_interval"`

	// History sampling
	Granularity int `json:"granularity"`
	QCapacity   int `json:"q_capacity"`

	// Ambient
	MaxClients  int    `json:"max_clients"`
	ChannelSize int    `json:"channel_size"`
	LogLevel    string `json:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          9001,
		DTFFolder:     "db",
		Autoflush:     false,
		FlushInterval: 1000,
		Granularity:   0,
		QCapacity:     300,
		MaxClients:    10000,
		ChannelSize:   1024,
		LogLevel:      "info",
	}
}

// Load reads configuration from a JSON file at path, falling back to
// defaults for any field the file omits. A missing file is not an error:
// Load returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a JSON file at path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
