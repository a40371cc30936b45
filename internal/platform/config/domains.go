package config

import "time"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// ExtractionConfig holds batching and retry settings of the extraction client.
type ExtractionConfig struct {
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
	Concurrency int
}

// MatchingConfig holds ranking and decision thresholds.
type MatchingConfig struct {
	AutoThreshold   int
	ReviewThreshold int
	TopN            int
}

// RedisConfig holds the label cache front settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DatabaseCfg returns the database configuration extracted from Config.
func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		PostgresDSN:       c.PostgresDSN,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// ExtractionCfg returns the extraction client configuration.
func (c *Config) ExtractionCfg() ExtractionConfig {
	return ExtractionConfig{
		BatchSize:   c.ExtractionBatchSize,
		MaxRetries:  c.ExtractionMaxRetries,
		BackoffBase: c.ExtractionBackoffBase,
		Concurrency: c.ExtractionConcurrency,
	}
}

// MatchingCfg returns the matching configuration.
func (c *Config) MatchingCfg() MatchingConfig {
	return MatchingConfig{
		AutoThreshold:   c.MatchAutoThreshold,
		ReviewThreshold: c.MatchReviewThreshold,
		TopN:            c.MatchTopN,
	}
}

// RedisCfg returns the redis configuration. Addr is empty when redis is disabled.
func (c *Config) RedisCfg() RedisConfig {
	return RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		TTL:      c.RedisCacheTTL,
	}
}

// OracleCredentials reports whether the selected provider has what it needs to run.
func (c *Config) OracleCredentials() bool {
	switch c.LLMProvider {
	case ProviderMock:
		return true
	case ProviderAnthropic:
		return c.AnthropicAPIKey != ""
	default:
		return c.LLMAPIKey != "" && c.LLMAPIKey != ProviderMock
	}
}
