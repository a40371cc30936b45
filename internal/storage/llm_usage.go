package db

import (
	"context"
	"fmt"
	"time"
)

// LLMUsageSummary aggregates oracle usage over a period.
type LLMUsageSummary struct {
	Since                 string                   `json:"since"`
	TotalPromptTokens     int64                    `json:"total_prompt_tokens"`
	TotalCompletionTokens int64                    `json:"total_completion_tokens"`
	TotalRequests         int64                    `json:"total_requests"`
	TotalCostUSD          float64                  `json:"total_cost_usd"`
	ByProvider            map[string]ProviderUsage `json:"by_provider"`
}

// ProviderUsage holds usage for a single provider.
type ProviderUsage struct {
	Provider         string  `json:"provider"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	RequestCount     int64   `json:"request_count"`
	CostUSD          float64 `json:"cost_usd"`
}

// IncrementLLMUsage increments LLM usage counters for the current day.
func (db *DB) IncrementLLMUsage(ctx context.Context, provider, model, task string, promptTokens, completionTokens int, cost float64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO llm_usage (date, provider, model, task, prompt_tokens, completion_tokens, request_count, cost_usd)
		VALUES (CURRENT_DATE, $1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (date, provider, model, task)
		DO UPDATE SET
			prompt_tokens = llm_usage.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = llm_usage.completion_tokens + EXCLUDED.completion_tokens,
			request_count = llm_usage.request_count + 1,
			cost_usd = llm_usage.cost_usd + EXCLUDED.cost_usd,
			updated_at = now()
	`, provider, model, task, promptTokens, completionTokens, cost)
	if err != nil {
		return fmt.Errorf("increment llm usage: %w", err)
	}

	return nil
}

// DailyTokenUsage returns the tokens spent today. It seeds the in-memory
// budget tracker after a restart.
func (db *DB) DailyTokenUsage(ctx context.Context) (int64, error) {
	var total int64

	err := db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(prompt_tokens + completion_tokens), 0)::bigint
		FROM llm_usage
		WHERE date = CURRENT_DATE
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("daily llm usage: %w", err)
	}

	return total, nil
}

// GetLLMUsageSince returns usage aggregated per provider since the given day.
func (db *DB) GetLLMUsageSince(ctx context.Context, since time.Time) (*LLMUsageSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT provider,
			   COALESCE(SUM(prompt_tokens), 0)::bigint,
			   COALESCE(SUM(completion_tokens), 0)::bigint,
			   COALESCE(SUM(request_count), 0)::bigint,
			   COALESCE(SUM(cost_usd), 0)::double precision
		FROM llm_usage
		WHERE date >= $1::date
		GROUP BY provider
	`, since.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("get llm usage: %w", err)
	}
	defer rows.Close()

	summary := &LLMUsageSummary{Since: since.Format(time.DateOnly), ByProvider: make(map[string]ProviderUsage)}

	for rows.Next() {
		var u ProviderUsage

		if err := rows.Scan(&u.Provider, &u.PromptTokens, &u.CompletionTokens, &u.RequestCount, &u.CostUSD); err != nil {
			return nil, fmt.Errorf("scan llm usage row: %w", err)
		}

		summary.TotalPromptTokens += u.PromptTokens
		summary.TotalCompletionTokens += u.CompletionTokens
		summary.TotalRequests += u.RequestCount
		summary.TotalCostUSD += u.CostUSD
		summary.ByProvider[u.Provider] = u
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate llm usage rows: %w", rows.Err())
	}

	return summary, nil
}
