// Package alert posts operator notifications to a Telegram chat. Alerts are
// throttled and best-effort; a down Telegram never affects lead processing.
package alert

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leadsync/internal/config"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	bot     sender
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewNotifier connects to Telegram. An empty token yields a disabled notifier
// so callers never need to nil-check.
func NewNotifier(cfg config.AlertsConfig, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		chatID:  cfg.TelegramChatID,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), 3),
		logger:  logger.With().Str("component", "alert").Logger(),
	}
	if cfg.TelegramToken == "" {
		n.logger.Info().Msg("telegram alerts disabled, no token configured")
		return n
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		n.logger.Error().Err(err).Msg("telegram connect failed, alerts disabled")
		return n
	}
	n.bot = bot
	n.logger.Info().Str("bot", bot.Self.UserName).Msg("telegram alerts enabled")
	return n
}

// Notify sends text to the operator chat, dropping messages over the rate cap.
func (n *Notifier) Notify(text string) {
	if n.bot == nil || n.chatID == 0 {
		return
	}
	if !n.limiter.Allow() {
		n.logger.Debug().Msg("alert throttled")
		return
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		n.logger.Warn().Err(err).Msg("alert send failed")
	}
}
