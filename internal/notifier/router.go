package notifier

import (
	"context"
	"strings"
)

// Router picks a Dispatcher by destination prefix and falls back to a
// default for everything else.
type Router struct {
	routes   []route
	fallback Dispatcher
}

type route struct {
	prefix     string
	dispatcher Dispatcher
}

// NewRouter creates a Router that sends unmatched destinations to fallback.
func NewRouter(fallback Dispatcher) *Router {
	return &Router{fallback: fallback}
}

// Handle routes destinations starting with prefix to d. Earlier prefixes
// take precedence.
func (r *Router) Handle(prefix string, d Dispatcher) {
	r.routes = append(r.routes, route{prefix: prefix, dispatcher: d})
}

// Dispatch forwards to the matching dispatcher.
func (r *Router) Dispatch(ctx context.Context, destination string, msg Message) error {
	for _, rt := range r.routes {
		if strings.HasPrefix(destination, rt.prefix) {
			return rt.dispatcher.Dispatch(ctx, destination, msg)
		}
	}
	return r.fallback.Dispatch(ctx, destination, msg)
}
