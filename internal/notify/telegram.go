package notify

import (
	"context"
	"fmt"

	"itinera/internal/config"
	"itinera/internal/domain"
	"itinera/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NewTelegramBot connects to the Bot API with the configured token.
func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramNotifier posts consultant alerts to a single chat.
type TelegramNotifier struct {
	bot    domain.TelegramSender
	chatID int64
}

func NewTelegramNotifier(bot domain.TelegramSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) Notify(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, Text(n))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram notify: %w", err)
	}
	return nil
}
