package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"stockwatch/internal/availability"
	"stockwatch/internal/config"
	"stockwatch/internal/fetcher"
	"stockwatch/internal/notifier"
	"stockwatch/internal/storage"
)

// loadConfig reads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, log, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.Open(ctx, storage.Config{Driver: cfg.StorageDriver, Path: cfg.DatabasePath})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func newFetcher(cfg *config.Config, log *slog.Logger) *fetcher.Client {
	normalizer := availability.New(cfg.Target.Store.StoreID, cfg.UnknownStatusPolicy)
	return fetcher.New(&http.Client{}, fetcher.Config{
		BaseURL:   cfg.Target.BaseURL,
		APIKey:    cfg.Target.APIKey,
		UserAgent: cfg.Target.UserAgent,
		Store:     cfg.Target.Store,
		Timeout:   cfg.FetchTimeout,
	}, normalizer, log)
}

func newExpo(cfg *config.Config) *notifier.Expo {
	return notifier.NewExpo(&http.Client{}, cfg.ExpoPushURL, cfg.ExpoAccessToken)
}
