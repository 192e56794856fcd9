package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"stockwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Subscribe adds itemID to the destination's watch-set. Adding an existing
// pair is a no-op.
func (s *SQLite) Subscribe(ctx context.Context, destination, itemID string) error {
	destination, itemID, err := validatePair(destination, itemID)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (destination, item_id, created_at) VALUES (?, ?, ?)`,
		destination, itemID, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Unsubscribe removes the pair and returns how many items the destination
// still watches. Removing an absent pair succeeds.
func (s *SQLite) Unsubscribe(ctx context.Context, destination, itemID string) (int, error) {
	destination, itemID, err := validatePair(destination, itemID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE destination = ? AND item_id = ?`,
		destination, itemID,
	); err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE destination = ?`, destination,
	).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return remaining, nil
}

// ListWatchedItems returns the distinct items watched by any destination.
func (s *SQLite) ListWatchedItems(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT item_id FROM subscriptions ORDER BY item_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query watched items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanStrings(rows)
}

// ListSubscribers returns every destination watching itemID.
func (s *SQLite) ListSubscribers(ctx context.Context, itemID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination FROM subscriptions WHERE item_id = ? ORDER BY destination`,
		strings.TrimSpace(itemID),
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanStrings(rows)
}

// ListItems returns the watch-set of a destination.
func (s *SQLite) ListItems(ctx context.Context, destination string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM subscriptions WHERE destination = ? ORDER BY item_id`,
		strings.TrimSpace(destination),
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanStrings(rows)
}

// RemoveDestination deletes every subscription of a destination.
func (s *SQLite) RemoveDestination(ctx context.Context, destination string) (int, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return 0, fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE destination = ?`, destination)
	if err != nil {
		return 0, fmt.Errorf("delete destination: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
