package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdWatch   = "watch"
	cmdUnwatch = "unwatch"
	cmdCheck   = "check"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, itemID, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	if _, err := ParseItemArg(itemID); err != nil {
		return
	}

	attrs := []any{"action", action, "item_id", itemID, "chat_id", chatID}
	if cb.From != nil {
		attrs = append(attrs, "user_id", cb.From.ID, "username", cb.From.UserName)
	}
	b.log.Info("callback", attrs...)

	switch action {
	case cmdCheck:
		b.handleCheck(ctx, chatID, itemID)
	case cmdUnwatch:
		b.handleUnwatch(ctx, chatID, itemID)
	}
}
