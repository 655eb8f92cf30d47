// Package config wraps viper behind a nil-safe accessor so callers can
// read settings without checking whether a file or section was present.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is a nil-safe view over a viper instance.
type Config struct {
	v *viper.Viper
}

// New wraps a viper instance. A nil viper yields a Config that returns
// zero values for every key.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Load builds the process configuration: defaults, an optional YAML file,
// and VMODEM_-prefixed environment overrides, highest priority last.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("profile", "deco")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("audit.max_entries", 500)
	v.SetDefault("audit.db_path", "")

	v.SetEnvPrefix("VMODEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return New(v), nil
}

// Viper exposes the underlying instance for components that take raw viper.
// Never nil; an empty instance is substituted for a nil-backed Config.
func (c *Config) Viper() *viper.Viper {
	if c.v == nil {
		return viper.New()
	}
	return c.v
}

func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	if c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	if c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree under key. Always non-nil; a missing subtree
// reads as empty.
func (c *Config) Sub(key string) *Config {
	if c.v == nil {
		return New(nil)
	}
	return New(c.v.Sub(key))
}

// Unmarshal decodes the configuration into target.
func (c *Config) Unmarshal(target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}
