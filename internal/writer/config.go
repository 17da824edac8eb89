package writer

import (
	"time"

	"github.com/rickgao/notifystream/internal/config"
)

// Config configures the NotificationWriter.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	// FlushAttempts bounds how often one batch is retried before it is dropped.
	FlushAttempts uint
	RetryInterval time.Duration
	// FlushTimeout bounds one flush including its retries.
	FlushTimeout time.Duration
}

// DefaultConfig returns the writer defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     config.DefaultArchiveBatchSize,
		FlushInterval: config.DefaultArchiveFlushInterval,
		BufferSize:    config.DefaultArchiveBufferSize,
		FlushAttempts: 3,
		RetryInterval: 250 * time.Millisecond,
		FlushTimeout:  10 * time.Second,
	}
}

// ConfigFrom converts the archive section of the service config.
func ConfigFrom(c config.ArchiveConfig) Config {
	cfg := DefaultConfig()
	if c.BatchSize > 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.FlushInterval > 0 {
		cfg.FlushInterval = c.FlushInterval
	}
	if c.BufferSize > 0 {
		cfg.BufferSize = c.BufferSize
	}
	return cfg
}

// Metrics contains writer counters.
type Metrics struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Flushes   int64 `json:"flushes"`
	Retries   int64 `json:"retries"`
	Errors    int64 `json:"errors"`
	Dropped   int64 `json:"dropped"`
}
