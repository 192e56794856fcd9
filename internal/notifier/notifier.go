// Package notifier fans an availability event out to every subscribed
// destination.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"stockwatch/internal/model"
)

// ErrDestinationGone reports that the push gateway no longer knows the
// destination. The notifier drops its subscriptions when it sees it.
var ErrDestinationGone = errors.New("destination no longer registered")

// Message is one push notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]any
}

// Dispatcher delivers a message to a single destination.
type Dispatcher interface {
	Dispatch(ctx context.Context, destination string, msg Message) error
}

// Subscribers resolves who receives an event. storage.Storage satisfies it.
type Subscribers interface {
	ListSubscribers(ctx context.Context, itemID string) ([]string, error)
	RemoveDestination(ctx context.Context, destination string) (int, error)
}

// Result counts the dispatches of one event.
type Result struct {
	Attempted int
	Delivered int
	Failed    int
	Removed   int
}

// Notifier sends availability events to subscribers.
type Notifier struct {
	subs       Subscribers
	dispatcher Dispatcher
	limiter    *rate.Limiter
	timeout    time.Duration
	log        *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRate paces dispatches to perSecond messages per second. Zero or
// negative disables pacing.
func WithRate(perSecond float64) Option {
	return func(n *Notifier) {
		if perSecond <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

// WithDispatchTimeout bounds each single dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.timeout = d }
}

// New creates a Notifier. By default it sends at most 20 messages per
// second with a 10 second timeout per dispatch.
func New(subs Subscribers, dispatcher Dispatcher, log *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		subs:       subs,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(20, 20),
		timeout:    10 * time.Second,
		log:        log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// FormatMessage builds the notification sent for an available item.
func FormatMessage(rec model.AvailabilityRecord) Message {
	return Message{
		Title: "IN STOCK: " + rec.ItemID,
		Body:  "Qty " + strconv.Itoa(rec.Qty()) + " at " + rec.StoreName + " (" + rec.StatusLabel + ")",
		Data: map[string]any{
			"tcin":          rec.ItemID,
			"qty":           rec.Qty(),
			"storeName":     rec.StoreName,
			"inStoreStatus": rec.StatusLabel,
			"updated":       rec.UpstreamUpdated,
		},
	}
}

// NotifyAvailable dispatches the availability message once to each current
// subscriber of rec.ItemID. A failed destination never affects the others
// and is not retried. The error is non-nil only when subscribers could not
// be resolved.
func (n *Notifier) NotifyAvailable(ctx context.Context, rec model.AvailabilityRecord) (Result, error) {
	subs, err := n.subs.ListSubscribers(ctx, rec.ItemID)
	if err != nil {
		return Result{}, fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		n.log.Info("item available with no subscribers", "item_id", rec.ItemID)
		return Result{}, nil
	}

	msg := FormatMessage(rec)
	var res Result
	for _, dest := range subs {
		if err := n.limiter.Wait(ctx); err != nil {
			n.log.Warn("dispatch aborted", "item_id", rec.ItemID, "pending", len(subs)-res.Attempted, "error", err)
			break
		}
		res.Attempted++

		if err := n.Send(ctx, dest, msg); err != nil {
			res.Failed++
			n.log.Error("dispatch notification",
				"item_id", rec.ItemID, "destination", dest, "error", err)
			if errors.Is(err, ErrDestinationGone) && n.forget(ctx, dest) {
				res.Removed++
			}
			continue
		}
		res.Delivered++
	}

	n.log.Info("notified subscribers",
		"item_id", rec.ItemID,
		"attempted", res.Attempted,
		"delivered", res.Delivered,
		"failed", res.Failed)
	return res, nil
}

// Send dispatches msg to one destination under the dispatch timeout. A
// panicking dispatcher is reported as an error for that destination only.
func (n *Notifier) Send(ctx context.Context, destination string, msg Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			panicID := uuid.NewString()
			n.log.Error("panic while dispatching",
				"destination", destination,
				"panic_id", panicID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("dispatch panicked (panic_id %s): %v", panicID, r)
		}
	}()
	return n.dispatcher.Dispatch(ctx, destination, msg)
}

func (n *Notifier) forget(ctx context.Context, dest string) bool {
	removed, err := n.subs.RemoveDestination(ctx, dest)
	if err != nil {
		n.log.Error("remove unregistered destination", "destination", dest, "error", err)
		return false
	}
	n.log.Info("removed unregistered destination", "destination", dest, "subscriptions", removed)
	return true
}
