// Package storage defines the subscription persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is returned when a destination or item ID is empty.
var ErrInvalidArgument = errors.New("invalid argument")

// Storage is the interface for all subscription persistence operations.
// Implementations must be safe for concurrent use.
type Storage interface {
	Subscribe(ctx context.Context, destination, itemID string) error
	Unsubscribe(ctx context.Context, destination, itemID string) (int, error)
	ListWatchedItems(ctx context.Context) ([]string, error)
	ListSubscribers(ctx context.Context, itemID string) ([]string, error)
	ListItems(ctx context.Context, destination string) ([]string, error)
	RemoveDestination(ctx context.Context, destination string) (int, error)

	Close() error
}

// Config selects and configures a storage backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": JSON document guarded by a lock file
type Config struct {
	Driver string
	Path   string
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return NewSQLite(ctx, cfg.Path)
	case "file", "json":
		return NewFile(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func validatePair(destination, itemID string) (string, string, error) {
	destination = strings.TrimSpace(destination)
	itemID = strings.TrimSpace(itemID)
	if destination == "" {
		return "", "", fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	if itemID == "" {
		return "", "", fmt.Errorf("%w: item ID is required", ErrInvalidArgument)
	}
	return destination, itemID, nil
}
