package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without starting anything",
	Long: `Load the configuration from the environment and STORE_PROFILE, report any
problems and print a summary of the effective settings. Secrets are not
printed.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Config is valid!")
	fmt.Fprintf(out, "  store:         %s (zip %s, %s)\n", cfg.Target.Store.StoreID, cfg.Target.Store.Zip, cfg.Target.Store.State)
	fmt.Fprintf(out, "  poll interval: %s\n", cfg.PollInterval)
	fmt.Fprintf(out, "  concurrency:   %d\n", cfg.FetchConcurrency)
	fmt.Fprintf(out, "  unknown:       %s\n", cfg.UnknownStatusPolicy)
	fmt.Fprintf(out, "  storage:       %s %s\n", cfg.StorageDriver, cfg.DatabasePath)
	fmt.Fprintf(out, "  http:          %s\n", cfg.HTTPAddr)
	fmt.Fprintf(out, "  telegram:      %t\n", cfg.TelegramEnabled())
	return nil
}
