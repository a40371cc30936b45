package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
)

// Anthropic model constants.
const (
	ModelClaudeHaiku = "claude-haiku-4-5"

	defaultAnthropicModel = ModelClaudeHaiku
)

type anthropicProvider struct {
	cfg         *config.Config
	client      anthropic.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
	circuit     *circuitBreaker
	usage       UsageRecorder
}

// NewAnthropicProvider creates the Anthropic extraction oracle.
func NewAnthropicProvider(cfg *config.Config, usage UsageRecorder, logger *zerolog.Logger) Oracle {
	return &anthropicProvider{
		cfg:         cfg,
		client:      anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimitRPS),
		circuit:     buildCircuit(cfg, ProviderAnthropic, logger),
		usage:       usage,
	}
}

func (p *anthropicProvider) Name() ProviderName {
	return ProviderAnthropic
}

// resolveModel keeps Claude model names and maps anything else to Haiku.
func (p *anthropicProvider) resolveModel() string {
	if strings.HasPrefix(p.cfg.LLMModel, modelPrefixClaude) {
		return p.cfg.LLMModel
	}

	return defaultAnthropicModel
}

func (p *anthropicProvider) ExtractAttributes(ctx context.Context, labels []string, vocab *domain.Vocabulary) (ExtractionResult, error) {
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

	resp, err := p.client.Messages.New(reqCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens(p.cfg)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildExtractionPrompt(labels, vocab))),
		},
	})

	observeDuration(ProviderAnthropic, model, start)

	if err != nil {
		p.circuit.recordFailure()
		p.usage.RecordTokenUsage(string(ProviderAnthropic), model, TaskExtractAttributes, 0, 0, false)

		return ExtractionResult{}, fmt.Errorf(errAnthropicMessages, classifyAnthropicError(err))
	}

	p.circuit.recordSuccess()

	promptTokens := int(resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)
	usage := Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          estimateCost(string(ProviderAnthropic), model, promptTokens, completionTokens),
	}
	p.usage.RecordTokenUsage(string(ProviderAnthropic), model, TaskExtractAttributes, promptTokens, completionTokens, true)

	content := extractTextFromResponse(resp)
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

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, err)
	}

	return classifyTransport(err)
}

func extractTextFromResponse(resp *anthropic.Message) string {
	var result strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			result.WriteString(block.Text)
		}
	}

	return result.String()
}
