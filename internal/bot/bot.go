// Package bot implements the Telegram front end: chats manage their watch
// list with commands and receive availability alerts as messages.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stockwatch/internal/config"
	"stockwatch/internal/model"
	"stockwatch/internal/notifier"
	"stockwatch/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ItemChecker fetches the current availability of one item.
type ItemChecker interface {
	Fetch(ctx context.Context, itemID string) (model.AvailabilityRecord, error)
}

// Bot is the Telegram bot that handles user commands and delivers alerts.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	checker ItemChecker
	cfg     *config.Config
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, checker ItemChecker, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		checker: checker,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if update.CallbackQuery.From != nil && !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From != nil && !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	if err := b.send(chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// Dispatch delivers an availability alert to a "telegram:<chat id>"
// destination. A chat that blocked the bot or no longer exists is reported
// as notifier.ErrDestinationGone.
func (b *Bot) Dispatch(ctx context.Context, destination string, msg notifier.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := ParseDestination(destination)
	if err != nil {
		return err
	}

	err = b.send(chatID, FormatNotification(msg))
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && destinationGone(apiErr) {
		return fmt.Errorf("%w: %s", notifier.ErrDestinationGone, apiErr.Message)
	}
	return err
}

func destinationGone(err *tgbotapi.Error) bool {
	switch err.Code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(err.Message), "chat not found")
	}
	return false
}

func (b *Bot) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdWatch:
		b.handleWatch(ctx, chatID, args)
	case cmdUnwatch:
		b.handleUnwatch(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	case "stop":
		b.handleStop(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
