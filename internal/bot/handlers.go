package bot

import (
	"context"
	"fmt"
	"slices"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Stock Watch!

Get a message the moment an item comes back in stock at your store.

Quick start:
1. /watch <item> to start watching (a TCIN or a product link)
2. /list to see what you are watching

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/watch <item> to watch an item (TCIN or product link)
/unwatch <item> to stop watching an item
/list to show watched items
/check <item> to look up current availability
/stop to stop all alerts for this chat`)
}

func (b *Bot) handleWatch(ctx context.Context, chatID int64, args string) {
	itemID, err := ParseItemArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /watch <tcin or product link>")
		return
	}

	if err := b.store.Subscribe(ctx, Destination(chatID), itemID); err != nil {
		b.log.Error("subscribe", "chat_id", chatID, "item_id", itemID, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to watch %s: %v", itemID, err))
		return
	}
	b.log.Info("watch added", "chat_id", chatID, "item_id", itemID)
	b.reply(chatID, fmt.Sprintf("Watching %s. You will get a message when it comes in stock.\n%s", itemID, ProductURL(itemID)))
}

func (b *Bot) handleUnwatch(ctx context.Context, chatID int64, args string) {
	itemID, err := ParseItemArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unwatch <tcin or product link>")
		return
	}

	dest := Destination(chatID)
	items, err := b.store.ListItems(ctx, dest)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !slices.Contains(items, itemID) {
		b.reply(chatID, fmt.Sprintf("You are not watching %s.", itemID))
		return
	}

	remaining, err := b.store.Unsubscribe(ctx, dest, itemID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.log.Info("watch removed", "chat_id", chatID, "item_id", itemID, "remaining", remaining)
	b.reply(chatID, fmt.Sprintf("Stopped watching %s. %d item(s) left.", itemID, remaining))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	items, err := b.store.ListItems(ctx, Destination(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(items) == 0 {
		b.reply(chatID, FormatWatchList(nil))
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items))
	for _, item := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check "+item, cmdCheck+":"+item),
			tgbotapi.NewInlineKeyboardButtonData("Unwatch", cmdUnwatch+":"+item),
		))
	}

	msg := tgbotapi.NewMessage(chatID, FormatWatchList(items))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send watch list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	itemID, err := ParseItemArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <tcin or product link>")
		return
	}

	rec, err := b.checker.Fetch(ctx, itemID)
	if err != nil {
		b.log.Warn("check item", "chat_id", chatID, "item_id", itemID, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to check %s: %v", itemID, err))
		return
	}
	b.reply(chatID, FormatRecord(rec))
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	n, err := b.store.RemoveDestination(ctx, Destination(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed %d watched item(s). You will get no more alerts.", n))
}
