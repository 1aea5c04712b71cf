package queue

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/bjaus/eventbus"
)

// TypeRegistry maps a queue and job name to the Go type that is rebuilt from
// a delivered message. Fanout types are registered under FanoutQueue and
// matched on any queue when no exact entry exists.
//
// TypeRegistry is safe for concurrent use.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[RoutingMetadata]reflect.Type
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[RoutingMetadata]reflect.Type)}
}

// Register adds t under the routing metadata of its zero value's spec. t or
// *t must implement Handlable.
func (r *TypeRegistry) Register(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("%w: nil type", ErrNotHandlable)
	}
	spec, err := zeroSpec(t)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[MetadataFor(spec)] = t
	return nil
}

// RegisterType adds T.
func RegisterType[T Handlable](r *TypeRegistry) error {
	return r.Register(reflect.TypeFor[T]())
}

// FromSignatures registers the handled type of every signature whose
// routing metadata is a RoutingMetadata. It is meant to be called with
// Registry.Signatures once all handlers are registered.
func (r *TypeRegistry) FromSignatures(sigs []eventbus.Signature) error {
	for _, sig := range sigs {
		if _, ok := sig.RoutingMetadata.(RoutingMetadata); !ok {
			continue
		}
		if err := r.Register(sig.Handles); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the type registered for a queue and job name.
func (r *TypeRegistry) Lookup(queue, name string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.types[RoutingMetadata{Queue: queue, Name: name}]; ok {
		return t, nil
	}
	if t, ok := r.types[RoutingMetadata{Queue: FanoutQueue, Name: name}]; ok {
		return t, nil
	}
	return nil, &TypeNotFoundError{Queue: queue, Name: name}
}

// Decode builds a new value of t from a payload.
func Decode(t reflect.Type, data []byte) (Handlable, error) {
	var ptr, out reflect.Value
	if t.Kind() == reflect.Pointer {
		ptr = reflect.New(t.Elem())
		out = ptr
	} else {
		ptr = reflect.New(t)
		out = ptr.Elem()
	}
	if err := decodeInto(ptr.Interface(), data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidPayload, t, err)
	}
	h, ok := out.Interface().(Handlable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotHandlable, t)
	}
	return h, nil
}
