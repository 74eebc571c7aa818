package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN     string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL     string `env:"RABBITMQ_URL,required=true"`
	UpstreamBaseURL string `env:"UPSTREAM_BASE_URL,required=true"`

	// RedisURL is optional: when unset the mutation rate limiter runs
	// in-process instead of sharing counters across instances.
	RedisURL string `env:"REDIS_URL"`

	MutationsPerMinute int64 `env:"MUTATIONS_PER_MINUTE,default=30"`
	MutationsPerHour   int64 `env:"MUTATIONS_PER_HOUR,default=300"`

	WorkerConcurrency int           `env:"WORKER_CONCURRENCY,default=8"`
	StaleRetryAfter   time.Duration `env:"STALE_RETRY_AFTER,default=10m"`
	StaleScanInterval time.Duration `env:"STALE_SCAN_INTERVAL,default=30s"`

	AlertRetryWarning   int           `env:"ALERT_RETRY_WARNING,default=3"`
	AlertRetryCritical  int           `env:"ALERT_RETRY_CRITICAL,default=5"`
	AlertVolumeWarning  int64         `env:"ALERT_VOLUME_WARNING,default=10"`
	AlertVolumeCritical int64         `env:"ALERT_VOLUME_CRITICAL,default=50"`
	AlertVolumeSpan     time.Duration `env:"ALERT_VOLUME_SPAN,default=1h"`

	StreamBufferSize  int           `env:"STREAM_BUFFER_SIZE,default=64"`
	StreamMaxLifetime time.Duration `env:"STREAM_MAX_LIFETIME,default=30m"`
	StreamIdleTimeout time.Duration `env:"STREAM_IDLE_TIMEOUT,default=5m"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
