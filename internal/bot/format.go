package bot

import (
	"fmt"
	"strings"

	"stockwatch/internal/model"
	"stockwatch/internal/notifier"
)

const productURLFormat = "https://www.target.com/p/-/A-%s"

// ProductURL returns the public product page for an item.
func ProductURL(itemID string) string {
	return fmt.Sprintf(productURLFormat, itemID)
}

// FormatNotification renders an availability alert as a chat message.
func FormatNotification(msg notifier.Message) string {
	var b strings.Builder
	b.WriteString(msg.Title)
	if msg.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(msg.Body)
	}
	if updated, ok := msg.Data["updated"].(string); ok && updated != "" {
		fmt.Fprintf(&b, "\nUpdated: %s", updated)
	}
	if itemID, ok := msg.Data["tcin"].(string); ok && itemID != "" {
		b.WriteString("\n\n")
		b.WriteString(ProductURL(itemID))
	}
	return b.String()
}

// FormatRecord describes a single availability observation.
func FormatRecord(rec model.AvailabilityRecord) string {
	var b strings.Builder
	state := "out of stock"
	if rec.Available {
		state = "in stock"
	}
	fmt.Fprintf(&b, "%s: %s\n", rec.ItemID, state)
	if rec.Quantity != nil {
		fmt.Fprintf(&b, "Qty %d at %s (%s)\n", *rec.Quantity, rec.StoreName, rec.StatusLabel)
	} else {
		fmt.Fprintf(&b, "Qty unknown at %s (%s)\n", rec.StoreName, rec.StatusLabel)
	}
	if rec.UpstreamUpdated != "" {
		fmt.Fprintf(&b, "Updated: %s\n", rec.UpstreamUpdated)
	}
	b.WriteString(ProductURL(rec.ItemID))
	return b.String()
}

// FormatWatchList lists the items a chat is watching.
func FormatWatchList(items []string) string {
	if len(items) == 0 {
		return "You are not watching anything yet. Use /watch <item> to add one."
	}
	var b strings.Builder
	b.WriteString("Watching:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "\n%s  %s", item, ProductURL(item))
	}
	return b.String()
}
