package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEnvironment            = EnvDevelopment
	DefaultRefreshPath            = "/api/token/refresh/"
	DefaultRequestTimeout         = 10 * time.Second
	DefaultMaxExponentialAttempts = 5
	DefaultExponentialBase        = 1 * time.Second
	DefaultExponentialCap         = 30 * time.Second
	DefaultLongInterval           = 10 * time.Second
	DefaultMaxTotalAttempts       = 20
	DefaultCredentialRetryDelay   = 5 * time.Second
	DefaultInitializingWindow     = 500 * time.Millisecond
	DefaultHealthPath             = "/api/health/"
	DefaultHealthTimeout          = 3 * time.Second
	DefaultHandshakeTimeout       = 10 * time.Second
	DefaultWriteTimeout           = 5 * time.Second
	DefaultPingInterval           = 30 * time.Second
	DefaultPingTimeout            = 75 * time.Second
	DefaultTransportBufferSize    = 256
	DefaultDBPort                 = 5432
	DefaultDBSSLMode              = "prefer"
	DefaultMaxConns               = 4
	DefaultMinConns               = 1
	DefaultArchiveBatchSize       = 100
	DefaultArchiveFlushInterval   = 2 * time.Second
	DefaultArchiveBufferSize      = 1000
	DefaultAMQPExchange           = "notifystream.events"
	DefaultLogLevel               = "info"
	DefaultServerAddr             = "127.0.0.1:8089"
)

// DefaultScopes is the permission set requested from the identity provider.
var DefaultScopes = []string{"openid", "profile", "offline_access"}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}

	// Auth defaults
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Auth.RefreshPath == "" {
		c.Auth.RefreshPath = DefaultRefreshPath
	}
	if c.Auth.RequestTimeout == 0 {
		c.Auth.RequestTimeout = DefaultRequestTimeout
	}

	// Retry defaults
	if c.Retry.MaxExponentialAttempts == 0 {
		c.Retry.MaxExponentialAttempts = DefaultMaxExponentialAttempts
	}
	if c.Retry.ExponentialBase == 0 {
		c.Retry.ExponentialBase = DefaultExponentialBase
	}
	if c.Retry.ExponentialCap == 0 {
		c.Retry.ExponentialCap = DefaultExponentialCap
	}
	if c.Retry.LongInterval == 0 {
		c.Retry.LongInterval = DefaultLongInterval
	}
	if c.Retry.MaxTotalAttempts == 0 {
		c.Retry.MaxTotalAttempts = DefaultMaxTotalAttempts
	}
	if c.Retry.CredentialRetryDelay == 0 {
		c.Retry.CredentialRetryDelay = DefaultCredentialRetryDelay
	}

	if c.Status.InitializingWindow == 0 {
		c.Status.InitializingWindow = DefaultInitializingWindow
	}

	// Health defaults
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = DefaultHealthTimeout
	}

	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultTransportBufferSize
	}

	applyDBDefaults(&c.Database)

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}

	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = DefaultAMQPExchange
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
