package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockwatch/internal/bot"
	"stockwatch/internal/httpapi"
	"stockwatch/internal/metrics"
	"stockwatch/internal/notifier"
	"stockwatch/internal/scheduler"
	"stockwatch/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll watched items and deliver alerts",
	Long: `Start the poll scheduler, the HTTP API and, when TELEGRAM_BOT_TOKEN is set,
the Telegram bot.

The first sweep runs immediately and then once per POLL_INTERVAL. The server
runs until interrupted (Ctrl+C) or it receives SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	m := metrics.New()
	fetch := newFetcher(cfg, log)
	tr := tracker.New()

	router := notifier.NewRouter(newExpo(cfg))
	var tg *bot.Bot
	if cfg.TelegramEnabled() {
		tg, err = bot.New(cfg.TelegramBotToken, store, fetch, cfg, log)
		if err != nil {
			return err
		}
		router.Handle(bot.DestinationPrefix, tg)
	}

	n := notifier.New(store, router, log,
		notifier.WithRate(cfg.PushRatePerSec),
		notifier.WithDispatchTimeout(cfg.PushTimeout),
	)
	sched := scheduler.New(store, fetch, tr, n, log,
		scheduler.WithPeriod(cfg.PollInterval),
		scheduler.WithConcurrency(cfg.FetchConcurrency),
		scheduler.WithMetrics(m),
	)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewServer(httpapi.Deps{
			Subscriptions: store,
			Checker:       fetch,
			Sender:        n,
			Status:        tr,
			Sweeps:        sched,
			Metrics:       m.Handler(),
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("starting stockwatch",
		"version", version,
		"addr", cfg.HTTPAddr,
		"store_id", cfg.Target.Store.StoreID,
		"poll_interval", cfg.PollInterval,
		"storage", cfg.StorageDriver,
		"telegram", cfg.TelegramEnabled())

	sched.Start(ctx)

	botDone := make(chan struct{})
	if tg != nil {
		go func() {
			defer close(botDone)
			tg.Run(ctx)
		}()
	} else {
		close(botDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
		log.Error("http server failed", "error", err)
		stop()
	}

	sched.Stop()
	<-botDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}

	log.Info("shutdown complete")
	return runErr
}
