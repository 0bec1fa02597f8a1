// Package config loads the todosync YAML configuration file.
//
// Example:
//
//	database: todos.db
//	sync:
//	  endpoint: http://localhost:5984/db
//	  live: true
//	  retry: true
//	  backoff_base: 100ms
//	  backoff_cap: 3.2s
//	  filter: '!completed'
//	  codec: cbor
//	serve:
//	  addr: 127.0.0.1:5984
//	  policy: todo.cue
//
// Relative paths are resolved against the directory holding the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/todosync/internal/replicate"
	"github.com/roach88/todosync/internal/wire"
)

// Config is the whole file.
type Config struct {
	// Database is the SQLite file holding local records.
	Database string `yaml:"database"`

	Sync  Sync  `yaml:"sync"`
	Serve Serve `yaml:"serve"`
}

// Sync configures the replication run by `todosync sync`.
type Sync struct {
	Endpoint       string        `yaml:"endpoint"`
	Live           bool          `yaml:"live"`
	Retry          bool          `yaml:"retry"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCap     time.Duration `yaml:"backoff_cap"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BatchSize      int           `yaml:"batch_size"`
	Filter         string        `yaml:"filter,omitempty"`
	Codec          string        `yaml:"codec,omitempty"`
}

// Serve configures `todosync serve`.
type Serve struct {
	Addr   string `yaml:"addr"`
	Name   string `yaml:"name"`
	Policy string `yaml:"policy,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: "todos.db",
		Sync: Sync{
			Live:           true,
			Retry:          true,
			BackoffBase:    replicate.DefaultBackoffBase,
			BackoffCap:     replicate.DefaultBackoffCap,
			PollInterval:   replicate.DefaultPollInterval,
			ConnectTimeout: replicate.DefaultConnectTimeout,
			BatchSize:      replicate.DefaultBatchSize,
		},
		Serve: Serve{
			Addr: "127.0.0.1:5984",
			Name: "todos",
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	base := filepath.Dir(path)
	cfg.Database = resolve(base, cfg.Database)
	cfg.Serve.Policy = resolve(base, cfg.Serve.Policy)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks value ranges. The sync endpoint is only required by the
// sync command, so it is not checked here.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("database is required")
	}
	s := c.Sync
	if s.BackoffBase <= 0 {
		return errors.New("sync.backoff_base must be positive")
	}
	if s.BackoffCap < s.BackoffBase {
		return fmt.Errorf("sync.backoff_cap (%s) is below sync.backoff_base (%s)", s.BackoffCap, s.BackoffBase)
	}
	if s.ConnectTimeout <= 0 {
		return errors.New("sync.connect_timeout must be positive")
	}
	if s.BatchSize < 1 {
		return errors.New("sync.batch_size must be at least 1")
	}
	if _, err := wire.ByName(s.Codec); err != nil {
		return fmt.Errorf("sync.codec: %w", err)
	}
	if _, err := replicate.CompileFilter(s.Filter); err != nil {
		return fmt.Errorf("sync.filter: %w", err)
	}
	if c.Serve.Addr == "" {
		return errors.New("serve.addr is required")
	}
	return nil
}

// Replication converts the sync section for replicate.New.
func (s Sync) Replication() replicate.Config {
	return replicate.Config{
		Endpoint:       s.Endpoint,
		Live:           s.Live,
		Retry:          s.Retry,
		BackoffBase:    s.BackoffBase,
		BackoffCap:     s.BackoffCap,
		PollInterval:   s.PollInterval,
		ConnectTimeout: s.ConnectTimeout,
		BatchSize:      s.BatchSize,
		Filter:         s.Filter,
	}
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}
