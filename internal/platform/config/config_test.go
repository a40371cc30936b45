package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/platform/schedule"
)

const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testPostgresDSN    = "postgres://localhost/test"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, "")
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	for _, key := range []string{
		"APP_ENV", "LLM_PROVIDER", "LLM_MODEL", "EXTRACTION_BATCH_SIZE",
		"MATCH_AUTO_THRESHOLD", "MATCH_REVIEW_THRESHOLD", "MATCH_TOP_N", "HEALTH_PORT",
		"REDIS_ADDR", "KAFKA_BROKERS", "RUN_LEASE_TTL", "RUN_SCHEDULE", "RUN_TIMEZONE", "RUN_TOPIC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 25, cfg.ExtractionBatchSize)
	assert.Equal(t, 90, cfg.MatchAutoThreshold)
	assert.Equal(t, 50, cfg.MatchReviewThreshold)
	assert.Equal(t, 3, cfg.MatchTopN)
	assert.Equal(t, 8080, cfg.HealthPort)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Hour, cfg.RunLeaseTTL)
	assert.Equal(t, "catalog.run.finished", cfg.RunTopic)

	slots, err := cfg.RunScheduleCfg()
	require.NoError(t, err)
	assert.True(t, slots.IsEmpty())
}

func TestLoad_ZeroReviewThreshold(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("MATCH_REVIEW_THRESHOLD", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.MatchingCfg().ReviewThreshold)
}

func TestLoad_KafkaBrokers(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidNumeric(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("MATCH_TOP_N", "three")

	_, err := Load()
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		LLMProvider:           ProviderOpenAI,
		ExtractionBatchSize:   25,
		ExtractionConcurrency: 2,
		MatchAutoThreshold:    90,
		MatchReviewThreshold:  50,
		MatchTopN:             3,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"valid", func(_ *Config) {}, nil},
		{"review above auto", func(c *Config) { c.MatchReviewThreshold = 95 }, errThresholdOrder},
		{"review equals auto", func(c *Config) { c.MatchReviewThreshold = 90 }, errThresholdOrder},
		{"auto above 100", func(c *Config) { c.MatchAutoThreshold = 101 }, errThresholdRange},
		{"zero review threshold", func(c *Config) { c.MatchReviewThreshold = 0 }, nil},
		{"negative review threshold", func(c *Config) { c.MatchReviewThreshold = -1 }, errThresholdRange},
		{"zero batch", func(c *Config) { c.ExtractionBatchSize = 0 }, errBatchSize},
		{"huge batch", func(c *Config) { c.ExtractionBatchSize = 1000 }, errBatchSize},
		{"zero concurrency", func(c *Config) { c.ExtractionConcurrency = 0 }, errConcurrency},
		{"zero top n", func(c *Config) { c.MatchTopN = 0 }, errTopN},
		{"unknown provider", func(c *Config) { c.LLMProvider = "cohere" }, errProvider},
		{"valid schedule", func(c *Config) { c.RunSchedule = "02:00,14:00"; c.RunTimezone = "Europe/Paris" }, nil},
		{"bad schedule slot", func(c *Config) { c.RunSchedule = "26:00" }, schedule.ErrHourOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_OracleCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"openai with key", Config{LLMProvider: ProviderOpenAI, LLMAPIKey: "sk-1"}, true},
		{"openai without key", Config{LLMProvider: ProviderOpenAI}, false},
		{"openai mock key", Config{LLMProvider: ProviderOpenAI, LLMAPIKey: "mock"}, false},
		{"anthropic with key", Config{LLMProvider: ProviderAnthropic, AnthropicAPIKey: "a"}, true},
		{"anthropic with openai key only", Config{LLMProvider: ProviderAnthropic, LLMAPIKey: "sk"}, false},
		{"mock", Config{LLMProvider: ProviderMock}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.OracleCredentials())
		})
	}
}
