package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/core/llm"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}

	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}

	return tgbotapi.Message{}, nil
}

func TestFormatRun(t *testing.T) {
	supplier := int64(7)
	errs := make([]string, 0, 7)

	for i := range 7 {
		errs = append(errs, fmt.Sprintf("span %d: <timeout>", i))
	}

	text := FormatRun(domain.RunRecord{
		ID:         "run-1",
		SupplierID: &supplier,
		Status:     domain.RunCompleted,
		Report: &domain.RunReport{
			TotalLabels: 10, CacheHits: 4, AutoMatched: 3, AutoCreated: 1, QueuedForReview: 1,
			Unresolved: 1, Remaining: 2, Errors: 7, ErrorMessages: errs,
		},
	})

	assert.Contains(t, text, "supplier 7")
	assert.Contains(t, text, "<code>completed</code>")
	assert.Contains(t, text, "Matched: 3, created: 1, queued for review: 1, unresolved: 1")
	assert.Contains(t, text, "Remaining: 2")
	assert.Contains(t, text, "&lt;timeout&gt;")
	assert.Contains(t, text, "and 2 more")
	assert.NotContains(t, text, "span 6")
}

func TestFormatRun_FailedWithoutReport(t *testing.T) {
	text := FormatRun(domain.RunRecord{ID: "run-2", Status: domain.RunFailed, Error: "auth failed"})

	assert.Contains(t, text, "all suppliers")
	assert.Contains(t, text, "Error: auth failed")
	assert.NotContains(t, text, "Labels:")
}

func TestFormatBudgetAlert(t *testing.T) {
	text := FormatBudgetAlert(llm.BudgetAlert{Level: "warning", DailyTokens: 800, BudgetLimit: 1000, Percentage: 0.8})
	assert.Equal(t, "<b>LLM budget warning</b>\nDaily tokens: 800 / 1000 (80%)", text)
}

func TestTelegram_NotifyRunFinished(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegram(sender, 42, nil)

	require.NoError(t, n.NotifyRunFinished(context.Background(), domain.RunRecord{ID: "run-3", Status: domain.RunCompleted}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, sender.sent[0].ParseMode)
}

func TestTelegram_SendTruncatesAndReportsErrors(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegram(sender, 1, nil)

	require.NoError(t, n.Send(context.Background(), strings.Repeat("a", MaxMessageSize+10)))
	require.Len(t, sender.sent, 1)
	assert.Len(t, []rune(sender.sent[0].Text), MaxMessageSize)

	sender.err = errors.New("forbidden")
	assert.Error(t, n.Send(context.Background(), "x"))
}
