// Package main is the entry point for the stockwatch CLI.
//
// Usage:
//
//	stockwatch serve                 # poll watched items and send alerts
//	stockwatch check <item>          # look up one item once
//	stockwatch notify-test <dest>    # send a test push
//	stockwatch migrate up            # apply database migrations
//	stockwatch validate              # check the configuration
//	stockwatch version
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "stockwatch",
	Short: "Watch in-store availability and alert subscribers",
	Long: `stockwatch polls a retailer's fulfillment API for every watched item at one
store and pushes an alert the moment an item goes from unavailable to
available.

Configuration comes from environment variables, optionally seeded by a YAML
store profile named in STORE_PROFILE. Run "stockwatch validate" to check it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "stockwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
