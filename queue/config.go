package queue

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// RouteConfig is the YAML layout of a route file:
//
//	routes:
//	  - name: order.placed
//	    queues:
//	      - name: billing
//	        options:
//	          attempts: 5
//	        strategy: override
//	      - name: audit
type RouteConfig struct {
	Routes []RouteEntry `yaml:"routes"`
}

// RouteEntry is the route of the fanout handlable with job name Name.
type RouteEntry struct {
	Name  string `yaml:"name"`
	Route `yaml:",inline"`
}

// ParseRouteConfig reads a route file. Unknown fields are rejected.
func ParseRouteConfig(r io.Reader) (RouteConfig, error) {
	var cfg RouteConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return RouteConfig{}, fmt.Errorf("parse route config: %w", err)
	}
	return cfg, nil
}

// Definitions resolves every entry to its fanout handlable type through
// types and validates the routes.
func (c RouteConfig) Definitions(types *TypeRegistry) ([]RouteDefinition, error) {
	defs := make([]RouteDefinition, 0, len(c.Routes))
	for _, e := range c.Routes {
		t, err := types.Lookup(FanoutQueue, e.Name)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", e.Name, err)
		}
		if err := e.Route.Validate(); err != nil {
			return nil, fmt.Errorf("route %q: %w", e.Name, err)
		}
		defs = append(defs, RouteDefinition{Type: t, Route: e.Route})
	}
	return defs, nil
}

// LoadRouter reads a route file and builds a Router from it.
func LoadRouter(r io.Reader, types *TypeRegistry) (*Router, error) {
	cfg, err := ParseRouteConfig(r)
	if err != nil {
		return nil, err
	}
	defs, err := cfg.Definitions(types)
	if err != nil {
		return nil, err
	}
	return NewRouter(defs...)
}
