package availability

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Scope selects the JSON node a rule's path is evaluated against.
type Scope int

// Supported rule scopes.
const (
	// ScopeMatchedStore is the store option whose location_id equals the
	// configured store.
	ScopeMatchedStore Scope = iota
	// ScopeFirstStore is the first store option the upstream returned.
	ScopeFirstStore
	// ScopeDocument is the whole response body.
	ScopeDocument
)

func (s Scope) String() string {
	switch s {
	case ScopeMatchedStore:
		return "matched_store"
	case ScopeFirstStore:
		return "first_store"
	default:
		return "document"
	}
}

// Rule is one extraction attempt: a gjson path evaluated inside a scope.
type Rule struct {
	Scope Scope
	Path  string
}

// Name identifies the rule in logs and tests.
func (r Rule) Name() string {
	return r.Scope.String() + ":" + r.Path
}

// storeOptionPaths lists where upstream versions put the per-store array.
var storeOptionPaths = []string{
	"data.product.store_options",
	"data.product.fulfillment.store_options",
}

// QuantityRules are tried in order; the first numeric value wins.
var QuantityRules = []Rule{
	{ScopeMatchedStore, "location_available_to_promise_quantity"},
	{ScopeMatchedStore, "available_to_promise_quantity"},
	{ScopeFirstStore, "location_available_to_promise_quantity"},
	{ScopeFirstStore, "available_to_promise_quantity"},
	{ScopeDocument, "data.children.0.item.fulfillment.pickup_options.0.available_to_promise_quantity"},
	{ScopeDocument, "data.children.0.item.fulfillment.pickup_options.0.pickup_available_to_promise_quantity"},
}

// StatusRules are tried in order; the first non-empty string wins.
var StatusRules = []Rule{
	{ScopeMatchedStore, "availability_status"},
	{ScopeMatchedStore, "pickup.availability_status"},
	{ScopeMatchedStore, "in_store_only.availability_status"},
	{ScopeFirstStore, "availability_status"},
	{ScopeFirstStore, "pickup.availability_status"},
	{ScopeFirstStore, "in_store_only.availability_status"},
	{ScopeDocument, "data.product.fulfillment.availability_status"},
}

// StoreNameRules resolve a display name for the store.
var StoreNameRules = []Rule{
	{ScopeMatchedStore, "store.location_name"},
	{ScopeMatchedStore, "location_name"},
	{ScopeFirstStore, "store.location_name"},
	{ScopeFirstStore, "location_name"},
	{ScopeDocument, "data.product.fulfillment.location_name"},
}

// UpdatedRules resolve the upstream's own freshness timestamp.
var UpdatedRules = []Rule{
	{ScopeMatchedStore, "updated"},
	{ScopeMatchedStore, "pickup.updated"},
	{ScopeMatchedStore, "ship_to_store.updated"},
	{ScopeFirstStore, "updated"},
}

// scopes holds the resolved roots of one document.
type scopes struct {
	doc     gjson.Result
	matched gjson.Result
	first   gjson.Result
}

func resolveScopes(doc gjson.Result, storeID string) scopes {
	s := scopes{doc: doc}
	for _, p := range storeOptionPaths {
		opts := doc.Get(p)
		if !opts.IsArray() {
			continue
		}
		opts.ForEach(func(_, opt gjson.Result) bool {
			if !s.first.Exists() {
				s.first = opt
			}
			if storeID != "" && !s.matched.Exists() && opt.Get("location_id").String() == storeID {
				s.matched = opt
			}
			return !s.matched.Exists()
		})
		if s.matched.Exists() {
			break
		}
	}
	return s
}

func (s scopes) root(scope Scope) gjson.Result {
	switch scope {
	case ScopeMatchedStore:
		return s.matched
	case ScopeFirstStore:
		return s.first
	default:
		return s.doc
	}
}

// firstMatch evaluates rules in order and returns the first value accepted
// by accept, together with the winning rule's name.
func firstMatch[T any](s scopes, rules []Rule, accept func(gjson.Result) (T, bool)) (T, string) {
	var zero T
	for _, r := range rules {
		root := s.root(r.Scope)
		if !root.Exists() {
			continue
		}
		if v, ok := accept(root.Get(r.Path)); ok {
			return v, r.Name()
		}
	}
	return zero, ""
}

func acceptInt(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Number:
		return int(r.Num), true
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func acceptString(r gjson.Result) (string, bool) {
	if r.Type != gjson.String {
		return "", false
	}
	s := strings.TrimSpace(r.Str)
	return s, s != ""
}
