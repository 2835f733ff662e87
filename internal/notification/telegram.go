package notification

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// botAPI is the part of *tgbot.BotAPI the notifier needs.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	bot    botAPI
	chatID int64
}

// NewTelegramNotifier connects to the Bot API and targets chatID.
func NewTelegramNotifier(token, chatID string) (*TelegramNotifier, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "telegram: chat id %q", chatID)
	}
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: connect")
	}
	return &TelegramNotifier{bot: bot, chatID: id}, nil
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	msg := tgbot.NewMessage(t.chatID, fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message)))
	msg.ParseMode = tgbot.ModeMarkdownV2
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "telegram: send")
	}
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!\\"
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
