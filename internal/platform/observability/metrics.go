package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolverRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_runs_total",
		Help: "The total number of resolution runs by final status",
	}, []string{"status"})

	ResolverRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolver_run_duration_seconds",
		Help:    "Duration of resolution runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	ResolverLabels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_labels_total",
		Help: "Unique labels handled by outcome",
	}, []string{"outcome"})

	ResolverBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resolver_backlog_labels",
		Help: "Unique uncached labels left after the last limited run",
	})

	LabelCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_label_cache_lookups_total",
		Help: "Label cache lookups by layer and result",
	}, []string{"layer", "result"})

	ExtractionCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_extraction_calls_total",
		Help: "Extraction oracle calls by result",
	}, []string{"result"})

	ExtractionSplits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolver_extraction_splits_total",
		Help: "Spans split in halves after repeated malformed responses",
	})

	ExtractionBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolver_extraction_batch_duration_seconds",
		Help:    "Duration to extract one batch including retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	MatchTopScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolver_match_top_score",
		Help:    "Top candidate score per extracted label",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100},
	})

	ReviewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_review_decisions_total",
		Help: "Review workflow transitions applied",
	}, []string{"status"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_events_published_total",
		Help: "Events published by type and status",
	}, []string{"event_type", "status"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_llm_requests_total",
		Help: "Total LLM requests by provider, model, task and status",
	}, []string{"provider", "model", "task", "status"})

	LLMTokensPrompt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_llm_tokens_prompt_total",
		Help: "Prompt tokens sent to LLM providers",
	}, []string{"provider", "model", "task"})

	LLMTokensCompletion = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_llm_tokens_completion_total",
		Help: "Completion tokens received from LLM providers",
	}, []string{"provider", "model", "task"})

	LLMEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_llm_estimated_cost_millicents_total",
		Help: "Estimated LLM cost in millicents",
	}, []string{"provider", "model", "task"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resolver_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "model"})

	LLMBudgetDailyTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resolver_llm_budget_daily_tokens",
		Help: "Tokens consumed against the daily budget",
	})
)
