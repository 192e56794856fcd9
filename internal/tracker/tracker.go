// Package tracker remembers the last known availability of each watched
// item and detects the unavailable-to-available edge.
package tracker

import (
	"sync"

	"stockwatch/internal/model"
)

// Transition describes the outcome of one observation.
type Transition struct {
	ItemID string
	// HadPrevious is false on the first observation of an item.
	HadPrevious bool
	Previous    bool
	Current     bool
	// BecameAvailable is true only when a known unavailable state turned
	// available.
	BecameAvailable bool
}

// Tracker holds per-item state. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	state map[string]model.AvailabilityRecord
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{state: make(map[string]model.AvailabilityRecord)}
}

// Observe records rec as the item's current state and reports whether it
// is a rising edge. The first observation of an item never fires.
func (t *Tracker) Observe(rec model.AvailabilityRecord) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.state[rec.ItemID]
	t.state[rec.ItemID] = rec

	tr := Transition{
		ItemID:      rec.ItemID,
		HadPrevious: ok,
		Current:     rec.Available,
	}
	if ok {
		tr.Previous = prev.Available
		tr.BecameAvailable = !prev.Available && rec.Available
	}
	return tr
}

// Last returns the most recent record observed for itemID.
func (t *Tracker) Last(itemID string) (model.AvailabilityRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.state[itemID]
	return rec, ok
}

// Retain forgets every item not in itemIDs and returns how many were
// dropped. An item that is watched again later starts from Unknown.
func (t *Tracker) Retain(itemIDs []string) int {
	keep := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for id := range t.state {
		if _, ok := keep[id]; !ok {
			delete(t.state, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked items.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.state)
}
