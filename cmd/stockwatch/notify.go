package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stockwatch/internal/bot"
	"stockwatch/internal/notifier"
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test <destination>",
	Short: "Send a test push to one destination",
	Long: `Send a single message to an Expo push token or a "telegram:<chat id>"
destination. Telegram destinations need TELEGRAM_BOT_TOKEN.

Example:
  stockwatch notify-test 'ExponentPushToken[xxxx]'
  stockwatch notify-test telegram:123456 --title Hello --body World`,
	Args: cobra.ExactArgs(1),
	RunE: runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyTestCmd)
	notifyTestCmd.Flags().String("title", "Test notification", "message title")
	notifyTestCmd.Flags().String("body", "Push delivery is working.", "message body")
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	title, _ := cmd.Flags().GetString("title")
	body, _ := cmd.Flags().GetString("body")
	dest := args[0]

	router := notifier.NewRouter(newExpo(cfg))
	if strings.HasPrefix(dest, bot.DestinationPrefix) {
		if !cfg.TelegramEnabled() {
			return fmt.Errorf("destination %s needs TELEGRAM_BOT_TOKEN", dest)
		}
		tg, err := bot.New(cfg.TelegramBotToken, nil, nil, cfg, log)
		if err != nil {
			return err
		}
		router.Handle(bot.DestinationPrefix, tg)
	}

	n := notifier.New(nil, router, log, notifier.WithDispatchTimeout(cfg.PushTimeout))
	if err := n.Send(cmd.Context(), dest, notifier.Message{Title: title, Body: body}); err != nil {
		return fmt.Errorf("notify %s: %w", dest, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", dest)
	return nil
}
