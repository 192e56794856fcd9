package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DestinationPrefix marks destinations delivered through Telegram.
const DestinationPrefix = "telegram:"

var (
	itemIDPattern  = regexp.MustCompile(`^\d+$`)
	productPattern = regexp.MustCompile(`A-(\d+)`)
)

// Destination returns the subscription destination for a chat.
func Destination(chatID int64) string {
	return DestinationPrefix + strconv.FormatInt(chatID, 10)
}

// ParseDestination extracts the chat ID from a "telegram:<id>" destination.
func ParseDestination(destination string) (int64, error) {
	raw, ok := strings.CutPrefix(destination, DestinationPrefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram destination: %q", destination)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID in destination %q: %w", destination, err)
	}
	return id, nil
}

// ParseItemArg extracts an item ID from a command argument: either a bare
// TCIN or a product link containing "A-<tcin>".
func ParseItemArg(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", errors.New("item is required")
	}
	s := fields[0]
	if itemIDPattern.MatchString(s) {
		return s, nil
	}
	if m := productPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("invalid item %q", s)
}
