// Package notify turns order.rejected, execution.report, risk.alert, and
// news.raw events into human-readable Telegram messages. It mirrors the
// teacher's pkg/slack: a thin client wrapping the vendor SDK, nil-safe so
// an unconfigured bot token just logs instead of failing loudly.
package notify

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends plain-text alerts to a single chat. If token or
// chatID is empty it falls back to logging, matching the source's
// "no credentials configured" behavior for local/dev runs.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier builds a notifier. A failure to construct the
// underlying bot API client (bad token) degrades to log-only rather than
// returning an error, since alert delivery is best-effort.
func NewTelegramNotifier(token string, chatID int64) *TelegramNotifier {
	logger := slog.Default().With("component", "notify-telegram")
	if token == "" || chatID == 0 {
		return &TelegramNotifier{logger: logger}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Warn("telegram bot init failed, falling back to log-only", "error", err)
		return &TelegramNotifier{logger: logger}
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}
}

// Send delivers text, logging instead when no bot is configured or on
// send failure — an alert channel outage must never take down the
// monitoring workers consuming these events.
func (n *TelegramNotifier) Send(_ context.Context, text string) {
	if n.bot == nil {
		n.logger.Info("alert", "text", text)
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("telegram send failed", "error", err)
	}
}
