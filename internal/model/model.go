// Package model defines the domain types used across the application.
package model

import "time"

// StoreContext holds the fixed location parameters the upstream needs to
// answer for one physical store. VisitorID and Cookie are the session
// fingerprint and are passed through untouched.
type StoreContext struct {
	StoreID   string `yaml:"store_id"`
	Latitude  string `yaml:"lat"`
	Longitude string `yaml:"lng"`
	Zip       string `yaml:"zip"`
	State     string `yaml:"state"`
	VisitorID string `yaml:"visitor_id"`
	Cookie    string `yaml:"cookie"`
}

// AvailabilityRecord is one normalized observation of an item.
type AvailabilityRecord struct {
	ItemID      string
	StoreID     string
	StoreName   string
	Available   bool
	Quantity    *int // nil when the upstream reported no quantity
	StatusLabel string
	ObservedAt  time.Time
	// UpstreamUpdated is the upstream's own timestamp, if it sent one.
	UpstreamUpdated string
}

// Qty returns the observed quantity, treating an absent figure as zero.
func (r AvailabilityRecord) Qty() int {
	if r.Quantity == nil {
		return 0
	}
	return *r.Quantity
}
