// Package notify sends operator notifications to an admin Telegram chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/core/llm"
	"github.com/lueurxax/catalog-resolver/internal/core/ports"
)

// MaxMessageSize is the longest text sent in one Telegram message.
const MaxMessageSize = 4000

const (
	maxErrorLines   = 5
	truncatedSuffix = "…"
)

// Sender is the subset of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts run summaries to one admin chat.
type Telegram struct {
	api    Sender
	chatID int64
	logger *zerolog.Logger
}

var _ ports.Notifier = (*Telegram)(nil)

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64, logger *zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot API: %w", err)
	}

	return newTelegram(api, chatID, logger), nil
}

func newTelegram(api Sender, chatID int64, logger *zerolog.Logger) *Telegram {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Telegram{api: api, chatID: chatID, logger: logger}
}

// NotifyRunFinished sends the run summary.
func (t *Telegram) NotifyRunFinished(ctx context.Context, run domain.RunRecord) error {
	return t.Send(ctx, FormatRun(run))
}

// NotifyBudgetAlert sends a token budget threshold alert.
func (t *Telegram) NotifyBudgetAlert(ctx context.Context, alert llm.BudgetAlert) error {
	return t.Send(ctx, FormatBudgetAlert(alert))
}

// Send posts an HTML message to the admin chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	msg := tgbotapi.NewMessage(t.chatID, truncate(text, MaxMessageSize))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error().Err(err).Int64("chat_id", t.chatID).Msg("failed to send notification")
		return fmt.Errorf("send notification to chat %d: %w", t.chatID, err)
	}

	return nil
}

// FormatRun renders a run record as Telegram HTML.
func FormatRun(run domain.RunRecord) string {
	var sb strings.Builder

	scope := "all suppliers"
	if run.SupplierID != nil {
		scope = fmt.Sprintf("supplier %d", *run.SupplierID)
	}

	fmt.Fprintf(&sb, "<b>Resolution run %s</b> (%s)\n", html.EscapeString(run.ID), scope)
	fmt.Fprintf(&sb, "Status: <code>%s</code>\n", html.EscapeString(string(run.Status)))

	if run.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", html.EscapeString(run.Error))
	}

	r := run.Report
	if r == nil {
		return sb.String()
	}

	fmt.Fprintf(&sb, "Labels: %d (cache %d, unresolved cache %d, awaiting review %d)\n",
		r.TotalLabels, r.CacheHits, r.UnresolvedHits, r.AwaitingReview)
	fmt.Fprintf(&sb, "Matched: %d, created: %d, queued for review: %d, unresolved: %d\n",
		r.AutoMatched, r.AutoCreated, r.QueuedForReview, r.Unresolved)
	fmt.Fprintf(&sb, "Extraction calls: %d, tokens %d/%d, cost $%.4f\n",
		r.ExtractionCalls, r.PromptTokens, r.CompletionTokens, r.CostUSD)

	if r.Skipped > 0 {
		fmt.Fprintf(&sb, "Skipped: %d\n", r.Skipped)
	}

	if r.Remaining > 0 {
		fmt.Fprintf(&sb, "Remaining: %d\n", r.Remaining)
	}

	if r.Errors > 0 {
		fmt.Fprintf(&sb, "Errors: %d\n", r.Errors)

		for i, msg := range r.ErrorMessages {
			if i == maxErrorLines {
				fmt.Fprintf(&sb, "<i>and %d more</i>\n", len(r.ErrorMessages)-maxErrorLines)
				break
			}

			fmt.Fprintf(&sb, "• %s\n", html.EscapeString(msg))
		}
	}

	return sb.String()
}

// FormatBudgetAlert renders a budget alert as Telegram HTML.
func FormatBudgetAlert(alert llm.BudgetAlert) string {
	return fmt.Sprintf("<b>LLM budget %s</b>\nDaily tokens: %d / %d (%.0f%%)",
		html.EscapeString(alert.Level), alert.DailyTokens, alert.BudgetLimit, alert.Percentage*100)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit-1]) + truncatedSuffix
}

// Noop drops every notification.
type Noop struct{}

var _ ports.Notifier = Noop{}

func (Noop) NotifyRunFinished(context.Context, domain.RunRecord) error { return nil }
