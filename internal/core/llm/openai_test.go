package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
)

type fakeChatCompleter struct {
	resp    openai.ChatCompletionResponse
	err     error
	lastReq openai.ChatCompletionRequest
	calls   int
}

func (f *fakeChatCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastReq = req

	return f.resp, f.err
}

func newTestOpenAI(t *testing.T, fake *fakeChatCompleter, usage UsageRecorder) *openaiProvider {
	t.Helper()

	logger := zerolog.Nop()
	cfg := &config.Config{LLMModel: "gpt-4o-mini", LLMCircuitThreshold: 2}

	if usage == nil {
		usage = NoopUsageRecorder()
	}

	return newOpenAIProvider(cfg, fake, usage, &logger)
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
		Usage: openai.Usage{PromptTokens: 1000, CompletionTokens: 200},
	}
}

func TestOpenAIProvider_ExtractAttributes(t *testing.T) {
	fake := &fakeChatCompleter{resp: chatResponse(`{"results":[{"index":0,"brand":"Samsung","model_family":"Galaxy S25 Ultra","storage":"256 Go","confidence":0.9}]}`)}
	p := newTestOpenAI(t, fake, nil)

	res, err := p.ExtractAttributes(context.Background(), []string{"Galaxy S25 Ultra 256Go"}, testVocabulary())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	assert.Equal(t, "Samsung", res.Records[0].Brand)
	assert.Equal(t, 1000, res.Usage.PromptTokens)
	assert.Equal(t, 200, res.Usage.CompletionTokens)
	assert.Positive(t, res.Usage.CostUSD)

	prompt := fake.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "KNOWN BRANDS: Apple, Samsung")
	assert.Contains(t, prompt, "SM-S938B: Galaxy S25 Ultra")
	assert.Contains(t, prompt, "[0] Galaxy S25 Ultra 256Go")
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, fake.lastReq.ResponseFormat.Type)
}

func TestOpenAIProvider_EmptyBatch(t *testing.T) {
	fake := &fakeChatCompleter{}
	p := newTestOpenAI(t, fake, nil)

	res, err := p.ExtractAttributes(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Zero(t, fake.calls)
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "unauthorized", err: &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, expected: coreerrors.ErrAuthentication},
		{name: "rate limited", err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, expected: coreerrors.ErrRateLimited},
		{name: "server error", err: &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, expected: coreerrors.ErrConnectivity},
		{name: "transport", err: errors.New("connection reset"), expected: coreerrors.ErrConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAI(t, &fakeChatCompleter{err: tt.err}, nil)

			_, err := p.ExtractAttributes(context.Background(), []string{"label"}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestOpenAIProvider_MalformedKeepsUsage(t *testing.T) {
	p := newTestOpenAI(t, &fakeChatCompleter{resp: chatResponse("sorry, no JSON today")}, nil)

	res, err := p.ExtractAttributes(context.Background(), []string{"label"}, nil)
	require.ErrorIs(t, err, coreerrors.ErrMalformedResponse)
	assert.Equal(t, 1000, res.Usage.PromptTokens)
}

func TestOpenAIProvider_CircuitOpens(t *testing.T) {
	fake := &fakeChatCompleter{err: errors.New("connection refused")}
	p := newTestOpenAI(t, fake, nil)

	for range 2 {
		_, err := p.ExtractAttributes(context.Background(), []string{"label"}, nil)
		require.Error(t, err)
	}

	_, err := p.ExtractAttributes(context.Background(), []string{"label"}, nil)
	require.ErrorIs(t, err, coreerrors.ErrCircuitBreakerOpen)
	assert.ErrorIs(t, err, coreerrors.ErrConnectivity)
	assert.Equal(t, 2, fake.calls)
}

type exhaustedUsage struct{}

func (exhaustedUsage) RecordTokenUsage(_, _, _ string, _, _ int, _ bool) {}

func (exhaustedUsage) BudgetExceeded() bool { return true }

func TestOpenAIProvider_BudgetExceeded(t *testing.T) {
	fake := &fakeChatCompleter{}
	p := newTestOpenAI(t, fake, exhaustedUsage{})

	_, err := p.ExtractAttributes(context.Background(), []string{"label"}, nil)
	require.ErrorIs(t, err, coreerrors.ErrBudgetExceeded)
	assert.Zero(t, fake.calls)
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(&config.Config{LLMProvider: config.ProviderOpenAI}, nil, nil)
	require.ErrorIs(t, err, coreerrors.ErrMissingCredentials)

	oracle, err := New(&config.Config{LLMProvider: config.ProviderMock}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, oracle.Name())
}

func TestBuildExtractionPrompt_NilVocabulary(t *testing.T) {
	prompt := buildExtractionPrompt([]string{" a ", "b"}, nil)

	assert.Contains(t, prompt, "exactly 2 records")
	assert.Contains(t, prompt, "KNOWN BRANDS: (none)")
	assert.True(t, strings.HasSuffix(prompt, "[0] a\n[1] b\n"))
}
