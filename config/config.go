// Package config loads engine configuration with viper: sensible defaults,
// an optional yaml file, and environment-variable overrides (STOCK_ENGINE_*).
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"server"`

	Database struct {
		// Path is the SQLite file path; ":memory:" for ephemeral runs.
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads configuration. The config file is optional; the binary works
// with defaults alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile("configs/config.yaml")
	}

	v.SetEnvPrefix("STOCK_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.path", "stock.db")
	v.SetDefault("log.level", "info")

	// The default config file is optional; an explicitly named one is not.
	if err := v.ReadInConfig(); err != nil && path != "" {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
