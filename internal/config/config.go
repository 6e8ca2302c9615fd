package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root TOML-loaded configuration surface (§6 "Configuration
// surfaces"), mirrored from the teacher's config.Load() entrypoint (its
// source wasn't part of the retrieval pack, so this follows BurntSushi/
// toml's own documented DecodeFile usage).
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	Queue   QueueConfig   `toml:"queue"`
	Ring    RingConfig    `toml:"ring"`
	Outbox  OutboxConfig  `toml:"outbox"`
	Inbox   InboxConfig   `toml:"inbox"`
	Retry   RetryConfig   `toml:"retry"`
	Logging LoggingConfig `toml:"logging"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type QueueConfig struct {
	MaxQueueLength    int           `toml:"max_queue_length"`
	DropWhenFull      bool          `toml:"drop_when_full"`
	VisibilityTimeout time.Duration `toml:"visibility_timeout"`
	MaxDequeueCount   int           `toml:"max_dequeue_count"`
}

type RingConfig struct {
	BufferSize   int64  `toml:"buffer_size"`
	ProducerMode string `toml:"producer_mode"` // "single" | "multi"
	WaitStrategy string `toml:"wait_strategy"` // "blocking" | "yielding" | "sleeping" | "busyspin"
}

type OutboxConfig struct {
	DefaultPriority int `toml:"default_priority"`
	MaxRetries      int `toml:"max_retries"`
}

type InboxConfig struct {
	RequireIdempotency bool          `toml:"require_idempotency"`
	Window             time.Duration `toml:"window"`
}

type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
	Factor      float64       `toml:"factor"`
	MaxDelay    time.Duration `toml:"max_delay"`
	Jitter      bool          `toml:"jitter"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present, matching
// the defaults documented in §6.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Queue: QueueConfig{
			MaxQueueLength:    10_000,
			DropWhenFull:      false,
			VisibilityTimeout: 30 * time.Second,
			MaxDequeueCount:   5,
		},
		Ring: RingConfig{
			BufferSize:   8192,
			ProducerMode: "multi",
			WaitStrategy: "yielding",
		},
		Outbox: OutboxConfig{
			DefaultPriority: 5,
			MaxRetries:      3,
		},
		Inbox: InboxConfig{
			RequireIdempotency: true,
			Window:             24 * time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			Factor:      2.0,
			MaxDelay:    5 * time.Second,
			Jitter:      true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path as TOML over the defaults, so an absent or partial file
// still produces a usable Config.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
