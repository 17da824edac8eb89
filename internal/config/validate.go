package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("environment must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment)
	}

	ep, ok := c.ActiveEndpoints()
	if !ok {
		return fmt.Errorf("endpoints.%s is required", c.Environment)
	}
	prefix := "endpoints." + c.Environment
	if err := validateURL(ep.APIBaseURL, prefix+".api_base_url", "http"); err != nil {
		return err
	}
	if err := validateURL(ep.NotificationsWSURL, prefix+".notifications_ws_url", "ws"); err != nil {
		return err
	}
	if err := validateURL(ep.UserUpdatesWSURL, prefix+".user_updates_ws_url", "ws"); err != nil {
		return err
	}

	if c.Retry.MaxExponentialAttempts < 0 {
		return errors.New("retry.max_exponential_attempts must be >= 0")
	}
	if c.Retry.MaxTotalAttempts < 1 {
		return errors.New("retry.max_total_attempts must be >= 1")
	}
	if c.Retry.ExponentialBase <= 0 || c.Retry.ExponentialCap <= 0 || c.Retry.LongInterval <= 0 {
		return errors.New("retry intervals must be positive")
	}
	if c.Retry.ExponentialCap < c.Retry.ExponentialBase {
		return fmt.Errorf("retry.exponential_cap (%s) cannot be below exponential_base (%s)",
			c.Retry.ExponentialCap, c.Retry.ExponentialBase)
	}
	if c.Auth.RequestTimeout <= 0 {
		return errors.New("auth.request_timeout must be positive")
	}
	if c.Health.Timeout <= 0 {
		return errors.New("health.timeout must be positive")
	}
	if c.Health.WatchdogInterval < 0 {
		return errors.New("health.watchdog_interval must be >= 0")
	}
	if c.Transport.BufferSize < 1 {
		return errors.New("transport.buffer_size must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.AMQP.URL != "" {
		if err := validateURL(c.AMQP.URL, "amqp.url", "amqp"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// validateURL requires an absolute URL whose scheme starts with protocol
// (so "ws" accepts ws and wss, "http" accepts http and https).
func validateURL(raw, key, protocol string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", key, err)
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute %s(s) URL, got %q", key, protocol, raw)
	}
	return nil
}
