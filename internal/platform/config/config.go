package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/lueurxax/catalog-resolver/internal/platform/schedule"
)

// Supported extraction providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

const maxExtractionBatchSize = 200

var (
	errThresholdOrder = errors.New("MATCH_REVIEW_THRESHOLD must be below MATCH_AUTO_THRESHOLD")
	errThresholdRange = errors.New("match thresholds must be within 0..100")
	errBatchSize      = errors.New("EXTRACTION_BATCH_SIZE out of range")
	errConcurrency    = errors.New("EXTRACTION_CONCURRENCY must be positive")
	errTopN           = errors.New("MATCH_TOP_N must be positive")
	errProvider       = errors.New("unknown LLM_PROVIDER")
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Extraction oracle
	LLMProvider         string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMAPIKey           string        `env:"LLM_API_KEY"`
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY"`
	LLMModel            string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMMaxTokens        int           `env:"LLM_MAX_TOKENS" envDefault:"4096"`
	LLMRequestTimeout   time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"90s"`
	RateLimitRPS        float64       `env:"RATE_LIMIT_RPS" envDefault:"1"`
	LLMCircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`
	LLMDailyTokenBudget int64         `env:"LLM_DAILY_TOKEN_BUDGET" envDefault:"0"`

	// Extraction batching
	ExtractionBatchSize   int           `env:"EXTRACTION_BATCH_SIZE" envDefault:"25"`
	ExtractionMaxRetries  int           `env:"EXTRACTION_MAX_RETRIES" envDefault:"4"`
	ExtractionBackoffBase time.Duration `env:"EXTRACTION_BACKOFF_BASE" envDefault:"2s"`
	ExtractionConcurrency int           `env:"EXTRACTION_CONCURRENCY" envDefault:"2"`

	// Matching
	MatchAutoThreshold   int `env:"MATCH_AUTO_THRESHOLD" envDefault:"90"`
	MatchReviewThreshold int `env:"MATCH_REVIEW_THRESHOLD" envDefault:"50"`
	MatchTopN            int `env:"MATCH_TOP_N" envDefault:"3"`

	// Redis front cache for label lookups
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisCacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"24h"`

	// Review and run events
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	ReviewTopic  string   `env:"REVIEW_TOPIC" envDefault:"catalog.review.queued"`
	RunTopic     string   `env:"RUN_TOPIC" envDefault:"catalog.run.finished"`

	// Run report notifications
	BotToken    string `env:"BOT_TOKEN"`
	AdminChatID int64  `env:"ADMIN_CHAT_ID"`

	// Run jobs
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"10s"`
	RunLeaseTTL        time.Duration `env:"RUN_LEASE_TTL" envDefault:"2h"`
	RunSchedule        string        `env:"RUN_SCHEDULE"`
	RunTimezone        string        `env:"RUN_TIMEZONE" envDefault:"UTC"`
	RunScheduledLimit  int           `env:"RUN_SCHEDULED_LIMIT" envDefault:"0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.MatchAutoThreshold < 0 || c.MatchAutoThreshold > 100 || c.MatchReviewThreshold < 0 || c.MatchReviewThreshold > 100 {
		return errThresholdRange
	}

	if c.MatchReviewThreshold >= c.MatchAutoThreshold {
		return errThresholdOrder
	}

	if c.ExtractionBatchSize < 1 || c.ExtractionBatchSize > maxExtractionBatchSize {
		return fmt.Errorf("%w: %d", errBatchSize, c.ExtractionBatchSize)
	}

	if c.ExtractionConcurrency < 1 {
		return errConcurrency
	}

	if c.MatchTopN < 1 {
		return errTopN
	}

	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return fmt.Errorf("%w: %q", errProvider, c.LLMProvider)
	}

	if _, err := c.RunScheduleCfg(); err != nil {
		return fmt.Errorf("RUN_SCHEDULE: %w", err)
	}

	return nil
}

// RunScheduleCfg parses the daily run slots. An empty RUN_SCHEDULE disables them.
func (c *Config) RunScheduleCfg() (schedule.Daily, error) {
	return schedule.Parse(c.RunSchedule, c.RunTimezone)
}
