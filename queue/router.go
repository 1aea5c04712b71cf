package queue

import (
	"fmt"
	"reflect"
	"sync"
)

// Strategy decides how destination options combine with a handlable's own
// options.
type Strategy string

const (
	// StrategyOverride merges destination options over the handlable's own
	// options. It is the default.
	StrategyOverride Strategy = "override"

	// StrategyRewrite replaces the handlable's own options.
	StrategyRewrite Strategy = "rewrite"
)

// Destination is one queue a fanout handlable is copied to.
type Destination struct {
	Name     string   `yaml:"name" json:"name"`
	Options  Options  `yaml:"options,omitempty" json:"options,omitempty"`
	Strategy Strategy `yaml:"strategy,omitempty" json:"strategy,omitempty"`
}

// Route lists the destinations of a fanout handlable type.
type Route struct {
	Destinations []Destination `yaml:"queues" json:"queues"`
}

func (r Route) clone() Route {
	out := Route{Destinations: make([]Destination, len(r.Destinations))}
	for i, d := range r.Destinations {
		d.Options = d.Options.Clone()
		out.Destinations[i] = d
	}
	return out
}

// Validate checks that the route has destinations, that every destination
// is named once, and that strategies are known.
func (r Route) Validate() error {
	if len(r.Destinations) == 0 {
		return ErrEmptyRoute
	}
	seen := make(map[string]struct{}, len(r.Destinations))
	for _, d := range r.Destinations {
		if d.Name == "" {
			return ErrEmptyDestinationName
		}
		if _, ok := seen[d.Name]; ok {
			return &DuplicateDestinationError{Name: d.Name}
		}
		seen[d.Name] = struct{}{}

		switch d.Strategy {
		case "", StrategyOverride, StrategyRewrite:
		default:
			return fmt.Errorf("%w: %q for destination %q", ErrUnknownStrategy, d.Strategy, d.Name)
		}
	}
	return nil
}

// ResolveOptions computes the options of the copy written to d:
//   - d has no options: own, unchanged
//   - StrategyRewrite: d's options only
//   - StrategyOverride or unset: own merged with d's options, d winning
func ResolveOptions(own Options, d Destination) Options {
	if len(d.Options) == 0 {
		return own.Clone()
	}
	if d.Strategy == StrategyRewrite {
		return d.Options.Clone()
	}
	return own.Merge(d.Options)
}

// RouteDefinition binds a route to a fanout handlable type.
type RouteDefinition struct {
	Type  reflect.Type
	Route Route
}

// RouteDefinitionFor builds a RouteDefinition for T.
func RouteDefinitionFor[T Handlable](route Route) RouteDefinition {
	return RouteDefinition{Type: reflect.TypeFor[T](), Route: route}
}

// Router maps fanout handlable types to routes. Every stored route has been
// validated, and routes are copied in and out so callers cannot change
// them afterwards.
//
// Router is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[reflect.Type]Route
}

// NewRouter creates a router from initial definitions. It fails on the
// first invalid definition.
func NewRouter(defs ...RouteDefinition) (*Router, error) {
	r := &Router{routes: make(map[reflect.Type]Route, len(defs))}
	for _, def := range defs {
		if err := r.AddRoute(def.Type, def.Route); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddRoute validates route and stores it for t, replacing any existing
// route. On error the router is unchanged.
func (r *Router) AddRoute(t reflect.Type, route Route) error {
	if err := validateRoute(t, route); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[t] = route.clone()
	return nil
}

// OverrideRoute validates route and replaces the existing route for t. It
// fails with *RouteNotFoundError when t has no route yet.
func (r *Router) OverrideRoute(t reflect.Type, route Route) error {
	if err := validateRoute(t, route); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[t]; !ok {
		return &RouteNotFoundError{Type: t.String()}
	}
	r.routes[t] = route.clone()
	return nil
}

// Route returns a copy of the route for t.
func (r *Router) Route(t reflect.Type) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[t]
	if !ok {
		return Route{}, false
	}
	return route.clone(), true
}

// AddRouteFor stores route for T.
func AddRouteFor[T Handlable](r *Router, route Route) error {
	return r.AddRoute(reflect.TypeFor[T](), route)
}

// RouteFor returns the route for T.
func RouteFor[T Handlable](r *Router) (Route, bool) {
	return r.Route(reflect.TypeFor[T]())
}

func validateRoute(t reflect.Type, route Route) error {
	if t == nil {
		return fmt.Errorf("%w: route without type", ErrNotHandlable)
	}
	if err := route.Validate(); err != nil {
		return fmt.Errorf("route for %s: %w", t, err)
	}
	return nil
}
