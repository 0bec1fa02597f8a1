package replicate

import (
	"errors"
	"time"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultBatchSize      = 100
)

// Config describes one replication.
type Config struct {
	// Endpoint names the peer. Checkpoints are stored per endpoint.
	Endpoint string

	// Live keeps the session open after catching up. Without it the
	// coordinator stops after the first full exchange.
	Live bool

	// Retry reconnects after failures. Without it the first failure stops
	// the coordinator and is reported by Err.
	Retry bool

	BackoffBase time.Duration
	BackoffCap  time.Duration

	// PollInterval bounds how long a live session waits before checking
	// the peer again. Zero uses the default; negative disables polling.
	PollInterval time.Duration

	// ConnectTimeout bounds the first pass of each attempt.
	ConnectTimeout time.Duration

	// BatchSize caps the records moved per direction and pass.
	BatchSize int

	// Filter is an expression selecting records to push. See CompileFilter.
	Filter string
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return errors.New("replicate: endpoint is required")
	}
	return nil
}
