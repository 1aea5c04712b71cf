package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound is matched by *EntityNotFoundError.
	ErrEntityNotFound = errors.New("queue: entity not found")

	// ErrFlowProducerNotRegistered is returned when a flow handlable names a
	// producer that was never registered.
	ErrFlowProducerNotRegistered = errors.New("queue: flow producer not registered")

	// ErrRouteNotFound is matched by *RouteNotFoundError.
	ErrRouteNotFound = errors.New("queue: route not found")

	// ErrTypeNotFound is matched by *TypeNotFoundError.
	ErrTypeNotFound = errors.New("queue: handlable type not found")

	// ErrInvalidPayload is returned when a message payload cannot be decoded
	// into its registered type.
	ErrInvalidPayload = errors.New("queue: invalid payload")

	ErrEmptyRoute           = errors.New("queue: route has no destinations")
	ErrEmptyDestinationName = errors.New("queue: destination has no name")
	ErrDuplicateDestination = errors.New("queue: duplicate destination name")
	ErrUnknownStrategy      = errors.New("queue: unknown options strategy")
	ErrNotHandlable         = errors.New("queue: value is not a handlable")
	ErrInvalidSpec          = errors.New("queue: invalid handlable spec")
	ErrQueueClosed          = errors.New("queue: closed")
)

// EntityNotFoundError reports a lookup of an unregistered queue, worker or
// flow producer.
type EntityNotFoundError struct {
	Kind string
	Name string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("queue: %s not found for key: %s", e.Kind, e.Name)
}

func (e *EntityNotFoundError) Unwrap() error { return ErrEntityNotFound }

// RouteNotFoundError reports a fanout handlable without a route.
type RouteNotFoundError struct {
	Type string
}

func (e *RouteNotFoundError) Error() string {
	return "queue: no route found for " + e.Type
}

func (e *RouteNotFoundError) Unwrap() error { return ErrRouteNotFound }

// DuplicateDestinationError reports a route listing one destination twice.
type DuplicateDestinationError struct {
	Name string
}

func (e *DuplicateDestinationError) Error() string {
	return fmt.Sprintf("queue: duplicate destination name %q", e.Name)
}

func (e *DuplicateDestinationError) Unwrap() error { return ErrDuplicateDestination }

// TypeNotFoundError reports a delivered message whose queue and job name
// map to no registered handlable type.
type TypeNotFoundError struct {
	Queue string
	Name  string
}

func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("queue: handlable type not found for name: %s and queue: %s", e.Name, e.Queue)
}

func (e *TypeNotFoundError) Unwrap() error { return ErrTypeNotFound }
