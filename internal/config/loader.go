package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOTIFYSTREAM"

// Load reads a YAML config file, expands environment variables and applies
// NOTIFYSTREAM_* overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides layers NOTIFYSTREAM_<KEY> variables over the file values.
// Endpoint overrides apply to the selected environment only.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if env := v.GetString("environment"); env != "" {
		cfg.Environment = env
	}
	if env := cfg.Environment; env != "" {
		ep := cfg.Endpoints[env]
		overrideString(v, "api_base_url", &ep.APIBaseURL)
		overrideString(v, "notifications_ws_url", &ep.NotificationsWSURL)
		overrideString(v, "user_updates_ws_url", &ep.UserUpdatesWSURL)
		if ep != (EndpointsConfig{}) {
			if cfg.Endpoints == nil {
				cfg.Endpoints = make(map[string]EndpointsConfig)
			}
			cfg.Endpoints[env] = ep
		}
	}

	overrideString(v, "session.path", &cfg.Session.Path)
	overrideString(v, "database.password", &cfg.Database.Password)
	overrideString(v, "amqp.url", &cfg.AMQP.URL)
	overrideString(v, "log.level", &cfg.Log.Level)
	overrideString(v, "server.addr", &cfg.Server.Addr)

	if v.IsSet("log.development") {
		cfg.Log.Development = v.GetBool("log.development")
	}
	if v.IsSet("database.enabled") {
		cfg.Database.Enabled = v.GetBool("database.enabled")
	}
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}
