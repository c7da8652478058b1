package alert

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"leadsync/internal/config"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, f.err
}

func TestNotifierWithoutTokenIsNoop(t *testing.T) {
	n := NewNotifier(config.AlertsConfig{RatePerMinute: 2}, zerolog.Nop())
	// Must not panic with no bot behind it.
	n.Notify("ignored")
}

func TestNotifySendsToChat(t *testing.T) {
	sender := &fakeSender{}
	n := &Notifier{
		bot:     sender,
		chatID:  42,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zerolog.Nop(),
	}

	n.Notify("job 7 dead-lettered")
	assert.Equal(t, []string{"job 7 dead-lettered"}, sender.sent)
}

func TestNotifyThrottles(t *testing.T) {
	sender := &fakeSender{}
	n := &Notifier{
		bot:     sender,
		chatID:  42,
		limiter: rate.NewLimiter(0, 2),
		logger:  zerolog.Nop(),
	}

	for i := 0; i < 5; i++ {
		n.Notify("burst")
	}
	assert.Len(t, sender.sent, 2)
}
