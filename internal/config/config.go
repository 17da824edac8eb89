package config

import "time"

// Environment names accepted in the environment key.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration for the notification stream daemon.
type Config struct {
	Environment string                     `yaml:"environment"`
	Endpoints   map[string]EndpointsConfig `yaml:"endpoints"`
	Auth        AuthConfig                 `yaml:"auth"`
	Session     SessionConfig              `yaml:"session"`
	Retry       RetryConfig                `yaml:"retry"`
	Status      StatusConfig               `yaml:"status"`
	Health      HealthConfig               `yaml:"health"`
	Transport   TransportConfig            `yaml:"transport"`
	Database    DBConfig                   `yaml:"database"`
	Archive     ArchiveConfig              `yaml:"archive"`
	AMQP        AMQPConfig                 `yaml:"amqp"`
	Log         LogConfig                  `yaml:"log"`
	Server      ServerConfig               `yaml:"server"`
}

// EndpointsConfig holds the URLs for one deployment environment.
type EndpointsConfig struct {
	APIBaseURL         string `yaml:"api_base_url"`
	NotificationsWSURL string `yaml:"notifications_ws_url"`
	UserUpdatesWSURL   string `yaml:"user_updates_ws_url"`
}

// AuthConfig holds token acquisition settings.
type AuthConfig struct {
	Scopes         []string      `yaml:"scopes"`          // Permission set requested from the identity provider
	RefreshPath    string        `yaml:"refresh_path"`    // REST path used to refresh a local session token
	RequestTimeout time.Duration `yaml:"request_timeout"` // HTTP timeout for one refresh attempt
}

// SessionConfig locates session storage.
type SessionConfig struct {
	Path string `yaml:"path"` // Empty keeps the session in memory only
}

// RetryConfig mirrors the reconnect policy.
type RetryConfig struct {
	MaxExponentialAttempts int           `yaml:"max_exponential_attempts"`
	ExponentialBase        time.Duration `yaml:"exponential_base"`
	ExponentialCap         time.Duration `yaml:"exponential_cap"`
	LongInterval           time.Duration `yaml:"long_interval"`
	MaxTotalAttempts       int           `yaml:"max_total_attempts"`
	CredentialRetryDelay   time.Duration `yaml:"credential_retry_delay"`
}

// StatusConfig holds status aggregation settings.
type StatusConfig struct {
	InitializingWindow time.Duration `yaml:"initializing_window"`
}

// HealthConfig holds health probe and watchdog settings.
type HealthConfig struct {
	Path             string        `yaml:"path"`
	Timeout          time.Duration `yaml:"timeout"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"` // 0 disables the watchdog
}

// TransportConfig holds socket settings.
type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// DBConfig holds the optional archive database connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ArchiveConfig holds notification archive writer settings.
type ArchiveConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// AMQPConfig holds the optional event fan-out broker.
type AMQPConfig struct {
	URL      string `yaml:"url"` // Empty disables fan-out
	Exchange string `yaml:"exchange"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"` // Optional rotated JSON log file
}

// ServerConfig holds the local status/control HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ActiveEndpoints returns the endpoints of the selected environment.
func (c *Config) ActiveEndpoints() (EndpointsConfig, bool) {
	ep, ok := c.Endpoints[c.Environment]
	return ep, ok
}
