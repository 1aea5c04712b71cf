package eventbus

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHandlerNotFound is matched by *NotFoundError.
	ErrHandlerNotFound = errors.New("eventbus: handler not found")

	// ErrMultipleHandlersFound is matched by *MultipleHandlersFoundError.
	ErrMultipleHandlersFound = errors.New("eventbus: multiple handlers found")

	// ErrHandlerThrown is matched by *HandlerThrownError.
	ErrHandlerThrown = errors.New("eventbus: handler failed")

	// ErrHandlersFailed is matched by *HandlersFailedError.
	ErrHandlersFailed = errors.New("eventbus: handlers failed")

	// ErrPublisherNotSet is returned by Bus.Publish and Bus.PublishAll before
	// a publisher has been attached.
	ErrPublisherNotSet = errors.New("eventbus: publisher not set")

	// ErrNilType is returned when a signature is registered without a
	// handled type.
	ErrNilType = errors.New("eventbus: signature has no handled type")

	// ErrNilHandler is returned when registering a nil handler or constructor.
	ErrNilHandler = errors.New("eventbus: nil handler")

	// ErrHandlableType is returned when a typed handler receives a value of
	// another type.
	ErrHandlableType = errors.New("eventbus: handlable type mismatch")

	// ErrResultType is returned by Convert when the value is not of the
	// requested type.
	ErrResultType = errors.New("eventbus: result type mismatch")

	// ErrNilFailure is stored by Failure when called with a nil error.
	ErrNilFailure = errors.New("eventbus: failure without error")
)

// describe renders a handlable type and its routing metadata for messages.
func describe(handlable string, metadata any) string {
	if metadata == nil {
		return fmt.Sprintf("'%s'", handlable)
	}
	m, err := Hash(metadata)
	if err != nil {
		m = fmt.Sprint(metadata)
	}
	return fmt.Sprintf("'%s' with routing metadata %s", handlable, m)
}

// NotFoundError reports that no handler is registered for a handlable.
type NotFoundError struct {
	Handlable       string
	RoutingMetadata any
}

func (e *NotFoundError) Error() string {
	return "eventbus: no handler found for " + describe(e.Handlable, e.RoutingMetadata)
}

func (e *NotFoundError) Unwrap() error { return ErrHandlerNotFound }

// MultipleHandlersFoundError reports that strict single dispatch resolved
// more than one handler.
type MultipleHandlersFoundError struct {
	Handlable       string
	RoutingMetadata any
	Count           int
}

func (e *MultipleHandlersFoundError) Error() string {
	return fmt.Sprintf("eventbus: %d handlers found for %s, expected exactly one",
		e.Count, describe(e.Handlable, e.RoutingMetadata))
}

func (e *MultipleHandlersFoundError) Unwrap() error { return ErrMultipleHandlersFound }

// HandlerThrownError wraps a failure raised by a handler. Both
// ErrHandlerThrown and the original cause are reachable through errors.Is
// and errors.As.
type HandlerThrownError struct {
	Handlable       string
	RoutingMetadata any
	Err             error
}

func (e *HandlerThrownError) Error() string {
	return fmt.Sprintf("eventbus: handler for %s failed: %v",
		describe(e.Handlable, e.RoutingMetadata), e.Err)
}

func (e *HandlerThrownError) Unwrap() []error { return []error{ErrHandlerThrown, e.Err} }

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// HandlerFailure is a single failed entry of a multi-handler dispatch.
type HandlerFailure struct {
	Index int
	Err   error
}

// HandlersFailedError aggregates the failures of a multi-handler dispatch,
// keeping the position of each failing handler.
type HandlersFailedError struct {
	Failures []HandlerFailure
}

func (e *HandlersFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eventbus: %d handler(s) failed", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; [%d] %v", f.Index, f.Err)
	}
	return b.String()
}

func (e *HandlersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrHandlersFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
