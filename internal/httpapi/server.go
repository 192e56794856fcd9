// Package httpapi exposes subscriptions, item lookups and health over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockwatch/internal/model"
	"stockwatch/internal/notifier"
	"stockwatch/internal/scheduler"
)

// Subscriptions is the subset of storage.Storage the API needs.
type Subscriptions interface {
	Subscribe(ctx context.Context, destination, itemID string) error
	Unsubscribe(ctx context.Context, destination, itemID string) (int, error)
	ListItems(ctx context.Context, destination string) ([]string, error)
}

// ItemChecker fetches live availability for one item.
type ItemChecker interface {
	Fetch(ctx context.Context, itemID string) (model.AvailabilityRecord, error)
}

// StatusSource returns the last observation recorded by the sweep.
type StatusSource interface {
	Last(itemID string) (model.AvailabilityRecord, bool)
}

// Sender delivers one message to one destination. notifier.Notifier
// satisfies it and bounds each delivery with its dispatch timeout.
type Sender interface {
	Send(ctx context.Context, destination string, msg notifier.Message) error
}

// SweepStatus reports the most recent sweep.
type SweepStatus interface {
	LastSweep() (scheduler.SweepReport, bool)
}

// Deps are the components the handlers call. Nil Status, Sweeps and
// Metrics disable the features that use them.
type Deps struct {
	Subscriptions Subscriptions
	Checker       ItemChecker
	Sender        Sender
	Status        StatusSource
	Sweeps        SweepStatus
	Metrics       http.Handler
}

// Server holds the handler dependencies.
type Server struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

// NewServer builds the router with request ID, logging and panic recovery
// middleware.
func NewServer(deps Deps, log *slog.Logger) *chi.Mux {
	s := &Server{deps: deps, log: log, now: time.Now}
	return s.routes()
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Post("/subscribe", s.subscribe)
	r.Post("/unsubscribe", s.unsubscribe)
	r.Get("/subscriptions/{token}", s.listSubscriptions)
	r.Post("/notify-test", s.notifyTest)

	r.Route("/items/{item}", func(r chi.Router) {
		r.Get("/", s.getItem)
		r.Get("/status", s.getItemStatus)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
