package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"stockwatch/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|up-one|down|status|version|reset>",
	Short: "Manage the SQLite schema",
	Long: `Apply or roll back the embedded SQL migrations. "serve" applies pending
migrations on start, so this is only needed for manual changes.

Commands:
  up        Migrate to the latest version
  up-one    Migrate one version up
  down      Roll back one version
  status    Show migration status
  version   Show current version
  reset     Roll back all migrations`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db", "", "path to sqlite database (overrides DATABASE_PATH)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dbPath = cfg.DatabasePath
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	p, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}
	return migrate(cmd.Context(), cmd.OutOrStdout(), p, args[0])
}

func migrate(ctx context.Context, out io.Writer, p *goose.Provider, command string) error {
	var results []*goose.MigrationResult
	var err error

	switch command {
	case "up":
		results, err = p.Up(ctx)
	case "up-one":
		var r *goose.MigrationResult
		r, err = p.UpByOne(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) || (err == nil && r == nil) {
			fmt.Fprintln(out, "already at latest version")
			return nil
		}
		results = append(results, r)
	case "down":
		var r *goose.MigrationResult
		r, err = p.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) || (err == nil && r == nil) {
			fmt.Fprintln(out, "no migrations to roll back")
			return nil
		}
		results = append(results, r)
	case "reset":
		results, err = p.DownTo(ctx, 0)
	case "status":
		statuses, serr := p.Status(ctx)
		if serr != nil {
			return fmt.Errorf("status: %w", serr)
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = "applied " + s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%-6d %-40s %s\n", s.Source.Version, s.Source.Path, applied)
		}
		return nil
	case "version":
		v, verr := p.GetDBVersion(ctx)
		if verr != nil {
			return fmt.Errorf("version: %w", verr)
		}
		fmt.Fprintf(out, "version %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(out, "%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
