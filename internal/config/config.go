package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Trello   TrelloConfig   `mapstructure:"trello"`
	Matrix   MatrixConfig   `mapstructure:"matrix"`
	Redis    RedisConfig    `mapstructure:"redis"`
	// Workers bounds concurrent webhook dispatches.
	Workers int `mapstructure:"workers"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type TrelloConfig struct {
	APIKey      string `mapstructure:"api_key"`
	APIToken    string `mapstructure:"api_token"`
	CallbackURL string `mapstructure:"callback_url"`
}

type MatrixConfig struct {
	HomeserverURL string `mapstructure:"homeserver_url"`
	AccessToken   string `mapstructure:"access_token"`
}

// RedisConfig enables cross-instance options invalidation when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Load reads the TOML file at path, or config.toml in the working directory
// when path is empty. TRELLOBOT_SECTION_KEY environment variables override
// file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "trellobot.db")
	v.SetDefault("redis.channel", "trellobot:options")
	v.SetDefault("workers", 10)

	v.SetEnvPrefix("trellobot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &cfg, nil
}

// Validate reports missing settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Trello.APIKey == "" {
		missing = append(missing, "trello.api_key")
	}
	if c.Trello.CallbackURL == "" {
		missing = append(missing, "trello.callback_url")
	}
	if c.Matrix.HomeserverURL == "" {
		missing = append(missing, "matrix.homeserver_url")
	}
	if c.Matrix.AccessToken == "" {
		missing = append(missing, "matrix.access_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
