package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// File implements Storage as a single JSON document:
//
//	{"devices": {"<destination>": {"items": ["<item>", ...]}}}
//
// Every operation re-reads the document under an in-process mutex and an
// advisory lock file, so separate processes can share it.
type File struct {
	path string

	mu   sync.Mutex
	lock *flock.Flock
}

type fileDoc struct {
	Devices map[string]*fileDevice `json:"devices"`
}

type fileDevice struct {
	Items []string `json:"items"`
}

// NewFile opens (creating if needed) a JSON subscription file at path.
func NewFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	f := &File{path: path, lock: flock.New(path + ".lock")}

	// Fail early on a corrupt document instead of at the first sweep.
	if err := f.view(func(*fileDoc) error { return nil }); err != nil {
		return nil, err
	}
	return f, nil
}

// Close releases the lock file handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lock.Close()
}

// Subscribe adds itemID to the destination's watch-set.
func (f *File) Subscribe(_ context.Context, destination, itemID string) error {
	destination, itemID, err := validatePair(destination, itemID)
	if err != nil {
		return err
	}
	return f.update(func(doc *fileDoc) (bool, error) {
		dev := doc.Devices[destination]
		if dev == nil {
			dev = &fileDevice{}
			doc.Devices[destination] = dev
		}
		if slices.Contains(dev.Items, itemID) {
			return false, nil
		}
		dev.Items = append(dev.Items, itemID)
		return true, nil
	})
}

// Unsubscribe removes the pair and returns the destination's remaining
// item count. A destination left with no items is pruned.
func (f *File) Unsubscribe(_ context.Context, destination, itemID string) (int, error) {
	destination, itemID, err := validatePair(destination, itemID)
	if err != nil {
		return 0, err
	}
	var remaining int
	err = f.update(func(doc *fileDoc) (bool, error) {
		dev := doc.Devices[destination]
		if dev == nil {
			return false, nil
		}
		idx := slices.Index(dev.Items, itemID)
		if idx >= 0 {
			dev.Items = slices.Delete(dev.Items, idx, idx+1)
		}
		remaining = len(dev.Items)
		if remaining == 0 {
			delete(doc.Devices, destination)
			return true, nil
		}
		return idx >= 0, nil
	})
	return remaining, err
}

// ListWatchedItems returns the distinct items watched by any destination.
func (f *File) ListWatchedItems(_ context.Context) ([]string, error) {
	var out []string
	err := f.view(func(doc *fileDoc) error {
		seen := make(map[string]struct{})
		for _, dev := range doc.Devices {
			for _, item := range dev.Items {
				if _, ok := seen[item]; ok {
					continue
				}
				seen[item] = struct{}{}
				out = append(out, item)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// ListSubscribers returns every destination watching itemID.
func (f *File) ListSubscribers(_ context.Context, itemID string) ([]string, error) {
	itemID = strings.TrimSpace(itemID)
	var out []string
	err := f.view(func(doc *fileDoc) error {
		for dest, dev := range doc.Devices {
			if slices.Contains(dev.Items, itemID) {
				out = append(out, dest)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// ListItems returns the watch-set of a destination.
func (f *File) ListItems(_ context.Context, destination string) ([]string, error) {
	destination = strings.TrimSpace(destination)
	var out []string
	err := f.view(func(doc *fileDoc) error {
		if dev := doc.Devices[destination]; dev != nil {
			out = slices.Clone(dev.Items)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// RemoveDestination deletes a destination and all of its items.
func (f *File) RemoveDestination(_ context.Context, destination string) (int, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return 0, fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	var removed int
	err := f.update(func(doc *fileDoc) (bool, error) {
		dev := doc.Devices[destination]
		if dev == nil {
			return false, nil
		}
		removed = len(dev.Items)
		delete(doc.Devices, destination)
		return true, nil
	})
	return removed, err
}

func (f *File) view(fn func(*fileDoc) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.RLock(); err != nil {
		return fmt.Errorf("lock subscriptions file: %w", err)
	}
	defer func() { _ = f.lock.Unlock() }()

	doc, err := f.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// update runs fn on a freshly loaded document and persists it when fn
// reports a change.
func (f *File) update(fn func(*fileDoc) (bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock subscriptions file: %w", err)
	}
	defer func() { _ = f.lock.Unlock() }()

	doc, err := f.load()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}
	return f.save(doc)
}

func (f *File) load() (*fileDoc, error) {
	doc := &fileDoc{Devices: map[string]*fileDevice{}}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read subscriptions file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode subscriptions file %s: %w", f.path, err)
	}
	if doc.Devices == nil {
		doc.Devices = map[string]*fileDevice{}
	}
	for dest, dev := range doc.Devices {
		if dev == nil {
			delete(doc.Devices, dest)
		}
	}
	return doc, nil
}

func (f *File) save(doc *fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscriptions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace subscriptions file: %w", err)
	}
	return nil
}
