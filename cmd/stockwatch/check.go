package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"stockwatch/internal/availability"
	"stockwatch/internal/model"
)

var checkCmd = &cobra.Command{
	Use:   "check <item>...",
	Short: "Look up the current availability of items",
	Long: `Fetch each item once from the upstream and print the normalized record.
With --raw the upstream JSON is printed instead, and stderr shows which rule
resolved each field.

Example:
  stockwatch check 12345678
  stockwatch check --raw 12345678`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("raw", false, "print the upstream payload")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	raw, _ := cmd.Flags().GetBool("raw")
	fetch := newFetcher(cfg, log)
	normalizer := availability.New(cfg.Target.Store.StoreID, cfg.UnknownStatusPolicy)
	out := cmd.OutOrStdout()

	var failed int
	for _, itemID := range args {
		if raw {
			p, err := fetch.FetchRaw(cmd.Context(), itemID)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", itemID, err)
				failed++
				continue
			}
			_, _ = out.Write(pretty.Pretty(p.Body))
			_, trace := normalizer.Normalize(itemID, p.Body, p.FetchedAt)
			printTrace(cmd.ErrOrStderr(), itemID, p.Body, trace)
			continue
		}

		rec, err := fetch.Fetch(cmd.Context(), itemID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", itemID, err)
			failed++
			continue
		}
		printRecord(out, rec)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(args))
	}
	return nil
}

func printRecord(w io.Writer, rec model.AvailabilityRecord) {
	qty := "unknown"
	if rec.Quantity != nil {
		qty = fmt.Sprint(*rec.Quantity)
	}
	fmt.Fprintf(w, "%s\n", rec.ItemID)
	fmt.Fprintf(w, "  available: %t\n", rec.Available)
	fmt.Fprintf(w, "  qty:       %s\n", qty)
	fmt.Fprintf(w, "  status:    %s\n", rec.StatusLabel)
	fmt.Fprintf(w, "  store:     %s (%s)\n", rec.StoreName, rec.StoreID)
	if rec.UpstreamUpdated != "" {
		fmt.Fprintf(w, "  updated:   %s\n", rec.UpstreamUpdated)
	}
}

func printTrace(w io.Writer, itemID string, body []byte, t availability.Trace) {
	rule := func(name string) string {
		if name == "" {
			return "(default)"
		}
		return name
	}
	stores := gjson.GetBytes(body, "data.product.fulfillment.store_options.#").Int() +
		gjson.GetBytes(body, "data.product.store_options.#").Int()
	fmt.Fprintf(w, "%s: %d store option(s)\n", itemID, stores)
	fmt.Fprintf(w, "  qty:    %s\n", rule(t.Quantity))
	fmt.Fprintf(w, "  status: %s\n", rule(t.Status))
	fmt.Fprintf(w, "  store:  %s\n", rule(t.StoreName))
	fmt.Fprintf(w, "  update: %s\n", rule(t.Updated))
}
