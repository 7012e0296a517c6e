package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers out-of-band messages through the Telegram bot.
type Notifier struct {
	api telegramAPI
}

func NewNotifier(api *tgbotapi.BotAPI) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (n *Notifier) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileRef))
	photo.Caption = caption
	_, err := n.api.Send(photo)
	return err
}
