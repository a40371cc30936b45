package llm

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
)

// Budget threshold percentages.
const (
	BudgetThresholdWarning  = 0.8
	BudgetThresholdCritical = 1.0
)

const dateFormatYMD = "2006-01-02"

// BudgetAlert represents an alert triggered by budget thresholds.
type BudgetAlert struct {
	Level       string // "warning" or "critical"
	DailyTokens int64
	BudgetLimit int64
	Percentage  float64
	Timestamp   time.Time
}

// BudgetTracker tracks daily token usage against an optional limit.
// A zero limit disables enforcement.
type BudgetTracker struct {
	mu            sync.Mutex
	dailyTokens   int64
	dailyLimit    int64
	lastResetDate string
	warningFired  bool
	criticalFired bool
	alertCallback func(alert BudgetAlert)
	logger        *zerolog.Logger
	now           func() time.Time
}

// NewBudgetTracker creates a new budget tracker.
func NewBudgetTracker(dailyLimit int64, logger *zerolog.Logger) *BudgetTracker {
	return &BudgetTracker{
		dailyLimit:    dailyLimit,
		lastResetDate: time.Now().UTC().Format(dateFormatYMD),
		logger:        logger,
		now:           time.Now,
	}
}

// SetAlertCallback sets the callback function for budget alerts.
func (bt *BudgetTracker) SetAlertCallback(callback func(alert BudgetAlert)) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.alertCallback = callback
}

// RecordTokens adds tokens to the daily count and checks budget thresholds.
func (bt *BudgetTracker) RecordTokens(tokens int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.resetIfNewDayLocked()

	bt.dailyTokens += int64(tokens)
	observability.LLMBudgetDailyTokens.Set(float64(bt.dailyTokens))

	if bt.dailyLimit <= 0 {
		return
	}

	percentage := float64(bt.dailyTokens) / float64(bt.dailyLimit)

	if !bt.criticalFired && percentage >= BudgetThresholdCritical {
		bt.criticalFired = true
		bt.fireAlert("critical", percentage)

		return
	}

	if !bt.warningFired && percentage >= BudgetThresholdWarning {
		bt.warningFired = true
		bt.fireAlert("warning", percentage)
	}
}

// Seed sets today's count from persisted usage without firing alerts.
func (bt *BudgetTracker) Seed(tokens int64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.resetIfNewDayLocked()

	bt.dailyTokens = tokens
	observability.LLMBudgetDailyTokens.Set(float64(tokens))
}

// Exceeded reports whether today's usage reached the limit.
func (bt *BudgetTracker) Exceeded() bool {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.resetIfNewDayLocked()

	return bt.dailyLimit > 0 && bt.dailyTokens >= bt.dailyLimit
}

// GetStatus returns the current budget status.
func (bt *BudgetTracker) GetStatus() (dailyTokens, dailyLimit int64, percentage float64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.resetIfNewDayLocked()

	dailyTokens = bt.dailyTokens
	dailyLimit = bt.dailyLimit

	if dailyLimit > 0 {
		percentage = float64(dailyTokens) / float64(dailyLimit)
	}

	return dailyTokens, dailyLimit, percentage
}

func (bt *BudgetTracker) fireAlert(level string, percentage float64) {
	alert := BudgetAlert{
		Level:       level,
		DailyTokens: bt.dailyTokens,
		BudgetLimit: bt.dailyLimit,
		Percentage:  percentage,
		Timestamp:   bt.now().UTC(),
	}

	if bt.logger != nil {
		bt.logger.Warn().
			Str("level", level).
			Int64("daily_tokens", bt.dailyTokens).
			Int64("budget_limit", bt.dailyLimit).
			Float64("percentage", percentage).
			Msg("LLM budget threshold reached")
	}

	if bt.alertCallback != nil {
		go bt.alertCallback(alert)
	}
}

func (bt *BudgetTracker) resetIfNewDayLocked() {
	today := bt.now().UTC().Format(dateFormatYMD)
	if bt.lastResetDate == today {
		return
	}

	bt.dailyTokens = 0
	bt.warningFired = false
	bt.criticalFired = false
	bt.lastResetDate = today

	if bt.logger != nil {
		bt.logger.Info().Str("date", today).Msg("LLM budget tracker reset for new day")
	}
}
