// Package availability reduces raw upstream inventory payloads to
// normalized availability records.
//
// Upstream responses are inconsistent across endpoint versions, so each
// field is resolved through an ordered rule table (see rules.go): the first
// rule that yields a usable value wins, and a field no rule resolves falls
// back to a fixed default.
package availability

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stockwatch/internal/model"
)

// Defaults applied when no rule matches.
const (
	DefaultStatus    = "UNKNOWN"
	DefaultStoreName = "Unknown store"
)

var (
	unavailablePattern = regexp.MustCompile(`(?i)OUT_OF_STOCK|UNAVAILABLE|NOT_SOLD_IN_STORE`)
	availablePattern   = regexp.MustCompile(`(?i)IN_STOCK|LIMITED_STOCK|^AVAILABLE`)
)

// Policy decides how a status label that is not recognised either way is
// interpreted when the quantity is zero.
type Policy string

// Supported policies.
const (
	// PolicyAvailable presumes unrecognised labels mean in stock. This
	// favors over-notification.
	PolicyAvailable Policy = "available"
	// PolicyUnavailable presumes unrecognised labels mean out of stock.
	PolicyUnavailable Policy = "unavailable"
)

// ParsePolicy validates a policy name. An empty string yields PolicyAvailable.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAvailable:
		return PolicyAvailable, nil
	case PolicyUnavailable:
		return PolicyUnavailable, nil
	default:
		return "", fmt.Errorf("unknown status policy %q, use: available, unavailable", s)
	}
}

// IsAvailable applies the availability rule: any positive quantity means
// available; otherwise the status label decides.
func IsAvailable(quantity int, status string, policy Policy) bool {
	if quantity > 0 {
		return true
	}
	if unavailablePattern.MatchString(status) {
		return false
	}
	if policy == PolicyUnavailable {
		return availablePattern.MatchString(status)
	}
	return true
}

// Trace records which rule resolved each field. Empty means the default
// was used.
type Trace struct {
	Quantity  string
	Status    string
	StoreName string
	Updated   string
}

// Matched reports whether the payload had at least one of the fields the
// availability decision depends on.
func (t Trace) Matched() bool {
	return t.Quantity != "" || t.Status != ""
}

// Normalizer turns raw payloads for one store into records.
type Normalizer struct {
	storeID string
	policy  Policy
}

// New creates a Normalizer for the given store.
func New(storeID string, policy Policy) *Normalizer {
	if policy == "" {
		policy = PolicyAvailable
	}
	return &Normalizer{storeID: storeID, policy: policy}
}

// Normalize extracts an AvailabilityRecord from body. It never fails:
// absent fields take their defaults and the returned Trace shows which
// ones were found.
func (n *Normalizer) Normalize(itemID string, body []byte, observedAt time.Time) (model.AvailabilityRecord, Trace) {
	s := resolveScopes(gjson.ParseBytes(body), n.storeID)

	var tr Trace
	rec := model.AvailabilityRecord{
		ItemID:     itemID,
		StoreID:    n.storeID,
		ObservedAt: observedAt,
	}

	qty, rule := firstMatch(s, QuantityRules, acceptInt)
	if rule != "" {
		rec.Quantity = &qty
		tr.Quantity = rule
	}

	rec.StatusLabel, tr.Status = firstMatch(s, StatusRules, acceptString)
	if tr.Status == "" {
		rec.StatusLabel = DefaultStatus
	}

	rec.StoreName, tr.StoreName = firstMatch(s, StoreNameRules, acceptString)
	if tr.StoreName == "" {
		rec.StoreName = DefaultStoreName
	}

	rec.UpstreamUpdated, tr.Updated = firstMatch(s, UpdatedRules, acceptString)

	if id := s.matched.Get("location_id").String(); id != "" {
		rec.StoreID = id
	} else if id := s.first.Get("location_id").String(); id != "" && rec.StoreID == "" {
		rec.StoreID = id
	}

	rec.Available = IsAvailable(rec.Qty(), rec.StatusLabel, n.policy)
	return rec, tr
}
