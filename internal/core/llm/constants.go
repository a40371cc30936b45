package llm

import "time"

const (
	errRateLimiter          = "rate limiter error: %w"
	errOpenAIChatCompletion = "openai chat completion error: %w"
	errAnthropicMessages    = "anthropic messages error: %w"
)

// Anthropic model names start with this; anything else falls back to the default Claude model.
const modelPrefixClaude = "claude"

const contentTypeText = "text"

const (
	rateLimiterBurst      = 5
	truncateLengthShort   = 500
	defaultMaxTokens      = 4096
	defaultRequestTimeout = 90 * time.Second

	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = time.Minute

	usageStorageTimeout = 5 * time.Second

	usdToMillicents = 100_000.0

	// Records produced by the mock oracle carry a middling confidence.
	mockConfidence = 0.6
)

const (
	logKeyProvider = "provider"
	logKeyModel    = "model"
	logKeyLabels   = "labels"
	logKeyResponse = "response"
)

// TaskExtractAttributes labels extraction calls in usage metrics and storage.
const TaskExtractAttributes = "extract_attributes"

// Request status for metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
