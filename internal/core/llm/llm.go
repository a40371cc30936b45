// Package llm holds the attribute extraction oracle: a provider-agnostic
// contract, the OpenAI and Anthropic implementations, a deterministic mock,
// and the token accounting shared by all of them.
//
// Every provider maps its transport errors onto the sentinels of
// internal/core/errors (authentication, rate limit, connectivity, malformed
// response) so callers can apply one retry policy regardless of provider.
package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
)

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderMock      ProviderName = "mock"
)

// Usage is the token and cost accounting of one oracle call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.CostUSD += other.CostUSD
}

// ExtractionResult holds one record per requested label, in request order.
type ExtractionResult struct {
	Records []domain.Attributes
	Usage   Usage
}

// Oracle turns free-text labels into structured attributes.
// Errors wrap one of ErrAuthentication, ErrRateLimited, ErrConnectivity or
// ErrMalformedResponse.
type Oracle interface {
	Name() ProviderName
	ExtractAttributes(ctx context.Context, labels []string, vocab *domain.Vocabulary) (ExtractionResult, error)
}

// New creates the oracle selected by LLM_PROVIDER.
// It fails with ErrMissingCredentials before any call is made when the
// provider has no credentials.
func New(cfg *config.Config, usage UsageRecorder, logger *zerolog.Logger) (Oracle, error) {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if usage == nil {
		usage = NoopUsageRecorder()
	}

	if !cfg.OracleCredentials() {
		return nil, fmt.Errorf("%w: provider %s", coreerrors.ErrMissingCredentials, cfg.LLMProvider)
	}

	switch cfg.LLMProvider {
	case config.ProviderMock:
		return NewMockProvider(), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg, usage, logger), nil
	default:
		return NewOpenAIProvider(cfg, usage, logger), nil
	}
}

func buildCircuit(cfg *config.Config, name ProviderName, logger *zerolog.Logger) *circuitBreaker {
	threshold := cfg.LLMCircuitThreshold
	if threshold == 0 {
		threshold = defaultCircuitThreshold
	}

	timeout := cfg.LLMCircuitTimeout
	if timeout == 0 {
		timeout = defaultCircuitTimeout
	}

	return newCircuitBreaker(string(name), threshold, timeout, logger)
}
