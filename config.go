package notifykit

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BackoffKind names a retry backoff strategy.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy controls how a queue retries failed deliveries.
type RetryPolicy struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED" envDefault:"true"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`
	Backoff     BackoffKind   `yaml:"backoff" env:"BACKOFF" envDefault:"exponential"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY" envDefault:"1s"`
}

// QueueRateLimit paces queue draining. The drain loop sleeps
// 1000/RequestsPerSecond milliseconds between items when enabled.
type QueueRateLimit struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// QueueConfig defines a single named processing lane.
type QueueConfig struct {
	ID          string         `yaml:"id"`
	Priority    int            `yaml:"priority"`
	Concurrency int            `yaml:"concurrency"`
	MaxPending  int            `yaml:"max_pending"`
	RateLimit   QueueRateLimit `yaml:"rate_limit"`
	Retry       RetryPolicy    `yaml:"retry"`
}

// RateLimitingConfig bounds notification creation globally, per user and
// per source. Limits are per minute.
type RateLimitingConfig struct {
	Enabled     bool `env:"RATE_LIMITING_ENABLED" envDefault:"false" yaml:"enabled"`
	GlobalLimit int  `env:"RATE_LIMITING_GLOBAL" envDefault:"1000" yaml:"global_limit"`
	UserLimit   int  `env:"RATE_LIMITING_USER" envDefault:"60" yaml:"user_limit"`
	SourceLimit int  `env:"RATE_LIMITING_SOURCE" envDefault:"120" yaml:"source_limit"`
}

// Config holds the engine configuration.
type Config struct {
	DefaultChannel          Channel       `env:"NOTIFY_DEFAULT_CHANNEL" envDefault:"toast" yaml:"default_channel"`
	DefaultPriority         Priority      `env:"NOTIFY_DEFAULT_PRIORITY" envDefault:"medium" yaml:"default_priority"`
	BatchingEnabled         bool          `env:"NOTIFY_BATCHING_ENABLED" envDefault:"true" yaml:"batching_enabled"`
	AnalyticsEnabled        bool          `env:"NOTIFY_ANALYTICS_ENABLED" envDefault:"true" yaml:"analytics_enabled"`
	RetentionDays           int           `env:"NOTIFY_RETENTION_DAYS" envDefault:"30" yaml:"retention_days"`
	MaxNotificationsPerUser int           `env:"NOTIFY_MAX_PER_USER" envDefault:"0" yaml:"max_notifications_per_user"`
	DedupWindow             time.Duration `env:"NOTIFY_DEDUP_WINDOW" envDefault:"60s" yaml:"dedup_window"`
	BatchTimeout            time.Duration `env:"NOTIFY_BATCH_TIMEOUT" envDefault:"15m" yaml:"batch_timeout"`
	FlushInterval           time.Duration `env:"NOTIFY_FLUSH_INTERVAL" envDefault:"60s" yaml:"flush_interval"`
	RetentionInterval       time.Duration `env:"NOTIFY_RETENTION_INTERVAL" envDefault:"1h" yaml:"retention_interval"`

	RateLimiting RateLimitingConfig `envPrefix:"NOTIFY_" yaml:"rate_limiting"`

	// Queues defines the processing lanes. When empty, DefaultQueues is used.
	Queues []QueueConfig `yaml:"queues"`
}

var (
	envLoaded sync.Once
)

// LoadConfig parses engine configuration from environment variables,
// loading a .env file first when present.
func LoadConfig() (Config, error) {
	envLoaded.Do(func() {
		// The .env file might not exist and that's ok
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = DefaultQueues()
	}
	return cfg, cfg.Validate()
}

// LoadQueuesFile reads queue definitions from a YAML file, replacing any
// queues already present on the config.
func (c *Config) LoadQueuesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var doc struct {
		Queues []QueueConfig `yaml:"queues"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(doc.Queues) == 0 {
		return fmt.Errorf("%w: no queues defined in %s", ErrInvalidConfig, path)
	}

	c.Queues = doc.Queues
	return c.Validate()
}

// Validate checks the configuration for values the engine cannot start with.
func (c Config) Validate() error {
	if c.RetentionDays < 0 {
		return fmt.Errorf("%w: retention days must not be negative", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Queues))
	for _, q := range c.Queues {
		if q.ID == "" {
			return fmt.Errorf("%w: queue with empty id", ErrInvalidConfig)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate queue id %q", ErrInvalidConfig, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.Retry.Enabled {
			switch q.Retry.Backoff {
			case BackoffFixed, BackoffLinear, BackoffExponential:
			default:
				return fmt.Errorf("%w: queue %q: %q", ErrInvalidBackoff, q.ID, q.Retry.Backoff)
			}
			if q.Retry.MaxAttempts <= 0 {
				return fmt.Errorf("%w: queue %q: retry max attempts must be positive", ErrInvalidConfig, q.ID)
			}
		}
		if q.RateLimit.Enabled && q.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("%w: queue %q: requests per second must be positive", ErrInvalidConfig, q.ID)
		}
	}
	return nil
}

// DefaultConfig returns a configuration with production-safe defaults and
// the standard three-lane queue topology.
func DefaultConfig() Config {
	return Config{
		DefaultChannel:    ChannelToast,
		DefaultPriority:   PriorityMedium,
		BatchingEnabled:   true,
		AnalyticsEnabled:  true,
		RetentionDays:     30,
		DedupWindow:       60 * time.Second,
		BatchTimeout:      15 * time.Minute,
		FlushInterval:     60 * time.Second,
		RetentionInterval: time.Hour,
		RateLimiting: RateLimitingConfig{
			Enabled:     false,
			GlobalLimit: 1000,
			UserLimit:   60,
			SourceLimit: 120,
		},
		Queues: DefaultQueues(),
	}
}

// DefaultQueues returns the standard high/medium/low lane definitions.
func DefaultQueues() []QueueConfig {
	return []QueueConfig{
		{
			ID:          QueueHigh,
			Priority:    3,
			Concurrency: 5,
			RateLimit:   QueueRateLimit{Enabled: false, RequestsPerSecond: 50, RequestsPerMinute: 1000},
			Retry:       RetryPolicy{Enabled: true, MaxAttempts: 5, Backoff: BackoffExponential, BaseDelay: time.Second},
		},
		{
			ID:          QueueMedium,
			Priority:    2,
			Concurrency: 3,
			RateLimit:   QueueRateLimit{Enabled: false, RequestsPerSecond: 20, RequestsPerMinute: 600},
			Retry:       RetryPolicy{Enabled: true, MaxAttempts: 3, Backoff: BackoffLinear, BaseDelay: 2 * time.Second},
		},
		{
			ID:          QueueLow,
			Priority:    1,
			Concurrency: 1,
			RateLimit:   QueueRateLimit{Enabled: true, RequestsPerSecond: 10, RequestsPerMinute: 300},
			Retry:       RetryPolicy{Enabled: false, MaxAttempts: 1, Backoff: BackoffFixed, BaseDelay: 5 * time.Second},
		},
	}
}
