package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
)

// chatCompleter is the slice of the go-openai client the provider needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type openaiProvider struct {
	cfg         *config.Config
	client      chatCompleter
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
	circuit     *circuitBreaker
	usage       UsageRecorder
}

// NewOpenAIProvider creates the OpenAI extraction oracle.
func NewOpenAIProvider(cfg *config.Config, usage UsageRecorder, logger *zerolog.Logger) Oracle {
	return newOpenAIProvider(cfg, openai.NewClient(cfg.LLMAPIKey), usage, logger)
}

func newOpenAIProvider(cfg *config.Config, client chatCompleter, usage UsageRecorder, logger *zerolog.Logger) *openaiProvider {
	return &openaiProvider{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimitRPS),
		circuit:     buildCircuit(cfg, ProviderOpenAI, logger),
		usage:       usage,
	}
}

func (p *openaiProvider) Name() ProviderName {
	return ProviderOpenAI
}

func (p *openaiProvider) resolveModel() string {
	if p.cfg.LLMModel != "" {
		return p.cfg.LLMModel
	}

	return openai.GPT4oMini
}

func (p *openaiProvider) ExtractAttributes(ctx context.Context, labels []string, vocab *domain.Vocabulary) (ExtractionResult, error) {
	if len(labels) == 0 {
		return ExtractionResult{}, nil
	}

	if p.usage.BudgetExceeded() {
		return ExtractionResult{}, coreerrors.ErrBudgetExceeded
	}

	if err := p.circuit.check(); err != nil {
		return ExtractionResult{}, fmt.Errorf("%w: %w", coreerrors.ErrConnectivity, err)
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return ExtractionResult{}, fmt.Errorf(errRateLimiter, err)
	}

	model := p.resolveModel()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout(p.cfg))
	defer cancel()

	start := time.Now()

	resp, err := p.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens(p.cfg),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildExtractionPrompt(labels, vocab),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	observeDuration(ProviderOpenAI, model, start)

	if err != nil {
		p.circuit.recordFailure()
		p.usage.RecordTokenUsage(string(ProviderOpenAI), model, TaskExtractAttributes, 0, 0, false)

		return ExtractionResult{}, fmt.Errorf(errOpenAIChatCompletion, classifyOpenAIError(err))
	}

	p.circuit.recordSuccess()

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CostUSD:          estimateCost(string(ProviderOpenAI), model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	p.usage.RecordTokenUsage(string(ProviderOpenAI), model, TaskExtractAttributes, usage.PromptTokens, usage.CompletionTokens, true)

	if len(resp.Choices) == 0 {
		return ExtractionResult{Usage: usage}, fmt.Errorf("%w: no choices", coreerrors.ErrMalformedResponse)
	}

	content := resp.Choices[0].Message.Content
	p.logger.Debug().
		Str(logKeyModel, model).
		Int(logKeyLabels, len(labels)).
		Str(logKeyResponse, truncate(content, truncateLengthShort)).
		Msg("LLM response")

	records, err := parseRecords(content, len(labels))
	if err != nil {
		return ExtractionResult{Usage: usage}, err
	}

	return ExtractionResult{Records: records, Usage: usage}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}

	return classifyTransport(err)
}

func newRateLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, rateLimiterBurst)
	}

	return rate.NewLimiter(rate.Limit(rps), rateLimiterBurst)
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.LLMRequestTimeout > 0 {
		return cfg.LLMRequestTimeout
	}

	return defaultRequestTimeout
}

func maxTokens(cfg *config.Config) int {
	if cfg.LLMMaxTokens > 0 {
		return cfg.LLMMaxTokens
	}

	return defaultMaxTokens
}
