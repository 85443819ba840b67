// Package config loads CLI configuration from file, environment, and
// defaults.
//
// Precedence is the usual viper ordering: explicit flags beat environment
// variables (TASKSYNC_*), which beat the config file, which beats the
// built-in defaults. The config file lives at
// $XDG_CONFIG_HOME/tasksync/config.yaml unless overridden.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved CLI configuration.
type Config struct {
	API struct {
		BaseURL string `mapstructure:"base_url"`
		SpaceID string `mapstructure:"space_id"`
		Token   string `mapstructure:"token"`
	} `mapstructure:"api"`

	Data struct {
		Dir      string `mapstructure:"dir"`
		Identity string `mapstructure:"identity"`
	} `mapstructure:"data"`

	Coordinator struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"coordinator"`

	Inbox struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"inbox"`

	Log struct {
		File string `mapstructure:"file"`
	} `mapstructure:"log"`

	Sync struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"sync"`
}

// DatabasePath returns the per-identity database location.
func (c *Config) DatabasePath() string {
	identity := c.Data.Identity
	if identity == "" {
		identity = "default"
	}
	return filepath.Join(c.Data.Dir, identity, "tasksync.db")
}

// HubWebsocketURL returns the coordinator hub endpoint to dial, or the
// empty string when no hub is configured.
func (c *Config) HubWebsocketURL() string {
	if c.Coordinator.Addr == "" {
		return ""
	}
	return fmt.Sprintf("ws://%s/ws", c.Coordinator.Addr)
}

// Load reads configuration. An explicit file path is required to exist; the
// default search locations are optional.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.space_id", "")
	v.SetDefault("api.token", "")
	v.SetDefault("data.dir", defaultDataDir())
	v.SetDefault("data.identity", "default")
	v.SetDefault("coordinator.addr", "127.0.0.1:7536")
	v.SetDefault("inbox.dir", "")
	v.SetDefault("log.file", "")
	v.SetDefault("sync.interval", time.Minute)

	v.SetEnvPrefix("TASKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
		if err := v.ReadInConfig(); err != nil {
			// A missing default config is fine; anything else is not.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tasksync")
	}
	return "."
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tasksync")
	}
	return filepath.Join(".", ".tasksync")
}
