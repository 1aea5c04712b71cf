package queue

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/bjaus/eventbus"
)

// FanoutQueue is the queue name fanout handlables are registered under.
// Their physical queues come from the Router.
const FanoutQueue = "__fanout__"

// Kind selects how a handlable is published.
type Kind int

const (
	// KindQueue handlables are written to Spec.Queue.
	KindQueue Kind = iota

	// KindFlow handlables are written as a job tree through a FlowProducer.
	KindFlow

	// KindFanout handlables are copied to every destination of their route.
	KindFanout
)

func (k Kind) String() string {
	switch k {
	case KindQueue:
		return "queue"
	case KindFlow:
		return "flow"
	case KindFanout:
		return "fanout"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Spec is the author-supplied description of a handlable: where it goes and
// how it is delivered. It is fixed at construction time; delivery-time
// information lives in Delivery.
type Spec struct {
	// Name is the job name.
	Name string

	// Queue is the destination queue. Fanout handlables leave it empty.
	Queue string

	Options Options
	Kind    Kind

	// Children are the child jobs of a flow.
	Children []Handlable

	// FlowName selects a named flow producer. Empty uses the default one.
	FlowName string

	// Prefix is the key prefix of a flow.
	Prefix string
}

// Validate checks the fields required by the kind.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSpec)
	}
	switch s.Kind {
	case KindQueue, KindFlow:
		if s.Queue == "" {
			return fmt.Errorf("%w: %s %q has no queue", ErrInvalidSpec, s.Kind, s.Name)
		}
	case KindFanout:
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidSpec, s.Kind)
	}
	if s.Kind != KindFlow && len(s.Children) > 0 {
		return fmt.Errorf("%w: only flows have children", ErrInvalidSpec)
	}
	return nil
}

// Handlable is a value that can be published to and consumed from a queue.
// The value itself is the payload.
//
// Example:
//
//	type SendEmail struct {
//	    To      string `json:"to"`
//	    Subject string `json:"subject"`
//	}
//
//	func (SendEmail) Spec() queue.Spec {
//	    return queue.Spec{Queue: "emails", Name: "send", Options: queue.Options{queue.OptAttempts: 3}}
//	}
type Handlable interface {
	Spec() Spec
}

// PayloadEncoder overrides the default JSON encoding of a handlable.
type PayloadEncoder interface {
	EncodePayload() ([]byte, error)
}

// PayloadDecoder overrides the default JSON decoding of a handlable. It is
// called on a pointer to a new zero value.
type PayloadDecoder interface {
	DecodePayload(data []byte) error
}

// Encode serializes the payload of h.
func Encode(h Handlable) ([]byte, error) {
	if e, ok := h.(PayloadEncoder); ok {
		return e.EncodePayload()
	}
	return json.Marshal(h)
}

// decodeInto fills ptr from data.
func decodeInto(ptr any, data []byte) error {
	if d, ok := ptr.(PayloadDecoder); ok {
		return d.DecodePayload(data)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, ptr)
}

// RoutingMetadata is the metadata queue handlers are registered under.
type RoutingMetadata struct {
	Queue string `json:"queue"`
	Name  string `json:"name"`
}

// MetadataFor returns the routing metadata of a spec. Fanout specs use
// FanoutQueue.
func MetadataFor(s Spec) RoutingMetadata {
	if s.Kind == KindFanout {
		return RoutingMetadata{Queue: FanoutQueue, Name: s.Name}
	}
	return RoutingMetadata{Queue: s.Queue, Name: s.Name}
}

// MetadataOf returns the routing metadata of h.
func MetadataOf(h Handlable) RoutingMetadata {
	return MetadataFor(h.Spec())
}

// zeroSpec returns the spec of the zero value of t. Pointer types use a
// pointer to a new zero value.
func zeroSpec(t reflect.Type) (Spec, error) {
	var v reflect.Value
	if t.Kind() == reflect.Pointer {
		v = reflect.New(t.Elem())
	} else {
		v = reflect.Zero(t)
	}
	h, ok := v.Interface().(Handlable)
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrNotHandlable, t)
	}
	return h.Spec(), nil
}

func metadataOfType[T Handlable]() (RoutingMetadata, error) {
	s, err := zeroSpec(reflect.TypeFor[T]())
	if err != nil {
		return RoutingMetadata{}, err
	}
	return MetadataFor(s), nil
}

// Register adds a Func for T under the routing metadata of T's spec. The
// spec is read from T's zero value, so Spec must not depend on field values
// for its queue and name.
func Register[T Handlable, R any](reg *eventbus.Registry, fn eventbus.Func[T, R]) error {
	meta, err := metadataOfType[T]()
	if err != nil {
		return err
	}
	return eventbus.Register(reg, meta, fn)
}

// RegisterProc adds a Proc for T under the routing metadata of T's spec.
func RegisterProc[T Handlable](reg *eventbus.Registry, p eventbus.Proc[T]) error {
	meta, err := metadataOfType[T]()
	if err != nil {
		return err
	}
	return eventbus.RegisterProc(reg, meta, p)
}

// RegisterScoped adds a per-delivery Func constructor for T. The call
// context handed to ctor is the *Delivery being processed.
//
// Example:
//
//	queue.RegisterScoped(reg, func(callCtx any) eventbus.Func[ResizeImage, *Thumbnail] {
//	    d := callCtx.(*queue.Delivery)
//	    return &Resizer{jobID: d.Message.ID}
//	})
func RegisterScoped[T Handlable, R any](reg *eventbus.Registry, ctor func(callCtx any) eventbus.Func[T, R]) error {
	meta, err := metadataOfType[T]()
	if err != nil {
		return err
	}
	return eventbus.RegisterScoped(reg, meta, ctor)
}

// RegisterScopedProc adds a per-delivery Proc constructor for T.
func RegisterScopedProc[T Handlable](reg *eventbus.Registry, ctor func(callCtx any) eventbus.Proc[T]) error {
	meta, err := metadataOfType[T]()
	if err != nil {
		return err
	}
	return eventbus.RegisterScopedProc(reg, meta, ctor)
}
