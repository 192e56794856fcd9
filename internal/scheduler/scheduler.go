// Package scheduler runs the periodic availability sweep.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stockwatch/internal/fetcher"
	"stockwatch/internal/metrics"
	"stockwatch/internal/model"
	"stockwatch/internal/notifier"
	"stockwatch/internal/tracker"
)

// DefaultPeriod is the time between sweeps.
const DefaultPeriod = 60 * time.Second

// Watchlist lists the items that currently have subscribers.
type Watchlist interface {
	ListWatchedItems(ctx context.Context) ([]string, error)
}

// AvailabilityFetcher returns a normalized record for one item.
type AvailabilityFetcher interface {
	Fetch(ctx context.Context, itemID string) (model.AvailabilityRecord, error)
}

// StateTracker detects rising edges.
type StateTracker interface {
	Observe(rec model.AvailabilityRecord) tracker.Transition
	Retain(itemIDs []string) int
}

// Notifier fans an event out to subscribers.
type Notifier interface {
	NotifyAvailable(ctx context.Context, rec model.AvailabilityRecord) (notifier.Result, error)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	ID               string
	Started          time.Time
	Items            int
	Fetched          int
	Failed           int
	Panics           int
	Transitions      int
	Notified         int
	DeliveryFailures int
	Duration         time.Duration
	// Err is set when the watch list could not be read.
	Err error
}

// Scheduler polls every watched item once per period.
type Scheduler struct {
	watchlist Watchlist
	fetcher   AvailabilityFetcher
	tracker   StateTracker
	notifier  Notifier
	log       *slog.Logger

	period      time.Duration
	clock       Clock
	concurrency int
	metrics     *metrics.Metrics

	sweepMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	last    *SweepReport
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPeriod sets the time between sweeps.
func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithConcurrency sets how many items are fetched at once. 1 (the default)
// processes items sequentially.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics records sweep outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler. It does nothing until Start or Sweep is called.
func New(w Watchlist, f AvailabilityFetcher, t StateTracker, n Notifier, log *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		watchlist:   w,
		fetcher:     f,
		tracker:     t,
		notifier:    n,
		log:         log,
		period:      DefaultPeriod,
		clock:       realClock{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a sweep immediately and then one per period in the
// background, until Stop is called or ctx is cancelled. Calling Start more
// than once, or after Stop, does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the running sweep, if any, and waits for the loop to exit.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// LastSweep returns the report of the most recent completed sweep.
func (s *Scheduler) LastSweep() (SweepReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SweepReport{}, false
	}
	return *s.last, true
}

func (s *Scheduler) run(ctx context.Context) {
	s.log.Info("scheduler started", "period", s.period, "concurrency", s.concurrency)
	defer s.log.Info("scheduler stopped")

	s.Sweep(ctx)

	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			// Ticks missed during a long sweep collapse into the one buffered
			// tick, which starts the next sweep as soon as this one returns.
			s.Sweep(ctx)
		}
	}
}

// Sweep polls every watched item once. Concurrent calls are serialized.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	rep := &tally{report: SweepReport{ID: uuid.NewString(), Started: s.clock.Now()}}
	log := s.log.With("sweep_id", rep.report.ID)

	items, err := s.watchlist.ListWatchedItems(ctx)
	if err != nil {
		log.Error("list watched items", "error", err)
		rep.report.Err = err
		return s.finish(rep)
	}
	rep.report.Items = len(items)
	if dropped := s.tracker.Retain(items); dropped > 0 {
		log.Debug("forgot unwatched items", "count", dropped)
	}
	log.Debug("sweep started", "items", len(items))

	if s.concurrency <= 1 {
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			s.processItem(ctx, log, item, rep)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				s.processItem(ctx, log, item, rep)
				return nil
			})
		}
		_ = g.Wait()
	}

	return s.finish(rep)
}

func (s *Scheduler) finish(rep *tally) SweepReport {
	r := rep.report
	r.Duration = s.clock.Now().Sub(r.Started)

	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()

	s.metrics.ObserveSweep(r.Items, r.Duration)
	if r.Err == nil {
		s.log.Info("sweep finished",
			"sweep_id", r.ID,
			"items", r.Items,
			"fetched", r.Fetched,
			"failed", r.Failed,
			"transitions", r.Transitions,
			"notified", r.Notified,
			"duration", r.Duration)
	}
	return r
}

func (s *Scheduler) processItem(ctx context.Context, log *slog.Logger, itemID string, rep *tally) {
	defer func() {
		if r := recover(); r != nil {
			panicID := uuid.NewString()
			log.Error("panic while processing item",
				"item_id", itemID,
				"panic_id", panicID,
				"panic", r,
				"stack", string(debug.Stack()))
			s.metrics.ObservePanic()
			rep.add(func(sr *SweepReport) {
				sr.Failed++
				sr.Panics++
			})
		}
	}()

	rec, err := s.fetcher.Fetch(ctx, itemID)
	s.metrics.ObserveFetch(fetcher.Kind(err))
	if err != nil {
		log.Warn("fetch availability", "item_id", itemID, "kind", fetcher.Kind(err), "error", err)
		rep.add(func(r *SweepReport) { r.Failed++ })
		return
	}
	rep.add(func(r *SweepReport) { r.Fetched++ })

	tr := s.tracker.Observe(rec)
	log.Debug("observed item",
		"item_id", itemID,
		"available", rec.Available,
		"qty", rec.Qty(),
		"status", rec.StatusLabel,
		"had_previous", tr.HadPrevious)
	if !tr.BecameAvailable {
		return
	}

	s.metrics.ObserveTransition()
	log.Info("item became available", "item_id", itemID, "qty", rec.Qty(), "store", rec.StoreName)

	res, err := s.notifier.NotifyAvailable(ctx, rec)
	if err != nil {
		log.Error("notify subscribers", "item_id", itemID, "error", err)
	}
	s.metrics.ObserveDeliveries(res.Delivered, res.Failed)
	rep.add(func(r *SweepReport) {
		r.Transitions++
		r.Notified += res.Delivered
		r.DeliveryFailures += res.Failed
	})
}

// tally guards a report shared by concurrent item workers.
type tally struct {
	mu     sync.Mutex
	report SweepReport
}

func (t *tally) add(fn func(*SweepReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.report)
}
