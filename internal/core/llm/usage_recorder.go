package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
)

// UsageRecorder records token usage of oracle calls and guards the daily budget.
type UsageRecorder interface {
	RecordTokenUsage(provider, model, task string, promptTokens, completionTokens int, success bool)
	BudgetExceeded() bool
}

// UsageStore persists aggregated daily usage.
type UsageStore interface {
	IncrementLLMUsage(ctx context.Context, provider, model, task string, promptTokens, completionTokens int, cost float64) error
}

type usageRecorder struct {
	budgetTracker *BudgetTracker
	usageStore    UsageStore
	logger        *zerolog.Logger
}

// NewUsageRecorder creates a UsageRecorder. Both the tracker and the store are optional.
func NewUsageRecorder(budgetTracker *BudgetTracker, usageStore UsageStore, logger *zerolog.Logger) UsageRecorder {
	return &usageRecorder{
		budgetTracker: budgetTracker,
		usageStore:    usageStore,
		logger:        logger,
	}
}

func (r *usageRecorder) RecordTokenUsage(provider, model, task string, promptTokens, completionTokens int, success bool) {
	recordTokenMetrics(provider, model, task, promptTokens, completionTokens, success)

	if !success {
		return
	}

	cost := estimateCost(provider, model, promptTokens, completionTokens)
	if cost > 0 {
		observability.LLMEstimatedCost.WithLabelValues(provider, model, task).Add(cost * usdToMillicents)
	}

	if r.budgetTracker != nil && promptTokens+completionTokens > 0 {
		r.budgetTracker.RecordTokens(promptTokens + completionTokens)
	}

	r.persistUsage(provider, model, task, promptTokens, completionTokens, cost)
}

func (r *usageRecorder) BudgetExceeded() bool {
	return r.budgetTracker != nil && r.budgetTracker.Exceeded()
}

// persistUsage stores usage asynchronously. Failures are logged and never fail the call.
func (r *usageRecorder) persistUsage(provider, model, task string, promptTokens, completionTokens int, cost float64) {
	if r.usageStore == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), usageStorageTimeout)
		defer cancel()

		if err := r.usageStore.IncrementLLMUsage(ctx, provider, model, task, promptTokens, completionTokens, cost); err != nil && r.logger != nil {
			r.logger.Warn().Err(err).Str(logKeyProvider, provider).Msg("failed to persist LLM usage")
		}
	}()
}

func recordTokenMetrics(provider, model, task string, promptTokens, completionTokens int, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}

	observability.LLMRequests.WithLabelValues(provider, model, task, status).Inc()

	if promptTokens > 0 {
		observability.LLMTokensPrompt.WithLabelValues(provider, model, task).Add(float64(promptTokens))
	}

	if completionTokens > 0 {
		observability.LLMTokensCompletion.WithLabelValues(provider, model, task).Add(float64(completionTokens))
	}
}

func observeDuration(provider ProviderName, model string, start time.Time) {
	observability.LLMRequestDuration.WithLabelValues(string(provider), model).Observe(time.Since(start).Seconds())
}

type noopUsageRecorder struct{}

// NoopUsageRecorder returns a recorder that tracks nothing and never exhausts the budget.
func NoopUsageRecorder() UsageRecorder {
	return &noopUsageRecorder{}
}

func (r *noopUsageRecorder) RecordTokenUsage(_, _, _ string, _, _ int, _ bool) {}

func (r *noopUsageRecorder) BudgetExceeded() bool { return false }
