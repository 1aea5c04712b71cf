package eventbus

import (
	"fmt"
	"reflect"
)

// Signature identifies what a handler handles: a handlable type plus
// optional routing metadata. Metadata is compared structurally.
type Signature struct {
	Handles         reflect.Type
	RoutingMetadata any
}

// SignatureFor builds the Signature for handlable type T.
func SignatureFor[T any](metadata any) Signature {
	return Signature{Handles: reflect.TypeFor[T](), RoutingMetadata: metadata}
}

func (s Signature) String() string {
	name := "<nil>"
	if s.Handles != nil {
		name = s.Handles.String()
	}
	return describe(name, s.RoutingMetadata)
}

// Constructor builds a scoped handler from the call context of a single
// dispatch.
type Constructor func(callCtx any) Handler

type singleton struct {
	id      any
	handler Handler
}

type scoped struct {
	id        uintptr
	construct Constructor
}

// slot holds the handlers of one signature.
type slot struct {
	singletons []singleton
	scoped     []scoped
}

func (s *slot) hasSingleton(id any) bool {
	for _, e := range s.singletons {
		if sameIdentity(e.id, id) {
			return true
		}
	}
	return false
}

func (s *slot) hasScoped(id uintptr) bool {
	for _, e := range s.scoped {
		if e.id == id {
			return true
		}
	}
	return false
}

// Registry maps signatures to handlers.
//
// Handlers are looked up by the exact dynamic type of the handlable, then by
// routing metadata using structural equality. Singletons are shared across
// dispatches; scoped handlers are built fresh for every dispatch.
//
// Registry is safe for concurrent use after configuration. Do not register
// handlers while dispatching.
type Registry struct {
	slots      map[reflect.Type]*KeyMap[*slot]
	signatures []Signature
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[reflect.Type]*KeyMap[*slot])}
}

// AddHandler registers a singleton handler. The same handler value added
// twice under one signature is kept once; function values are never
// considered equal.
func (r *Registry) AddHandler(sig Signature, h Handler) error {
	if isNil(h) {
		return ErrNilHandler
	}
	return r.addSingleton(sig, h, h)
}

// AddScopedHandler registers a constructor. The same constructor function
// added twice under one signature is kept once.
//
// Constructors are identified by their code pointer. Closures created from
// one function literal share that pointer even when they capture different
// values, so only the first of them is kept for a signature. Register such
// closures under distinct routing metadata, or fold the captured values into
// a single constructor.
func (r *Registry) AddScopedHandler(sig Signature, c Constructor) error {
	if c == nil {
		return ErrNilHandler
	}
	return r.addScoped(sig, reflect.ValueOf(c).Pointer(), c)
}

func (r *Registry) addSingleton(sig Signature, id any, h Handler) error {
	s, err := r.slot(sig)
	if err != nil {
		return err
	}
	if !s.hasSingleton(id) {
		s.singletons = append(s.singletons, singleton{id: id, handler: h})
	}
	r.signatures = append(r.signatures, sig)
	return nil
}

func (r *Registry) addScoped(sig Signature, id uintptr, c Constructor) error {
	s, err := r.slot(sig)
	if err != nil {
		return err
	}
	if !s.hasScoped(id) {
		s.scoped = append(s.scoped, scoped{id: id, construct: c})
	}
	r.signatures = append(r.signatures, sig)
	return nil
}

// slot returns the slot for sig, creating it when absent.
func (r *Registry) slot(sig Signature) (*slot, error) {
	if sig.Handles == nil {
		return nil, ErrNilType
	}
	byMeta, ok := r.slots[sig.Handles]
	if !ok {
		byMeta = NewKeyMap[*slot]()
		r.slots[sig.Handles] = byMeta
	}
	s, found, err := byMeta.Lookup(sig.RoutingMetadata)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", sig.Handles, err)
	}
	if !found {
		s = &slot{}
		if err := byMeta.Set(sig.RoutingMetadata, s); err != nil {
			return nil, fmt.Errorf("register %s: %w", sig.Handles, err)
		}
	}
	return s, nil
}

// Resolve returns the handlers for a handlable and routing metadata:
// singletons in registration order, then one new instance per scoped
// constructor in registration order. The result is empty, never nil, when
// nothing is registered. An error is returned only when the metadata cannot
// be hashed or a constructor returns nil.
func (r *Registry) Resolve(handlable any, metadata any, callCtx any) ([]Handler, error) {
	handlers := []Handler{}
	t := reflect.TypeOf(handlable)
	if t == nil {
		return handlers, nil
	}
	byMeta, ok := r.slots[t]
	if !ok {
		return handlers, nil
	}
	s, found, err := byMeta.Lookup(metadata)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", t, err)
	}
	if !found {
		return handlers, nil
	}

	for _, e := range s.singletons {
		handlers = append(handlers, e.handler)
	}
	for _, e := range s.scoped {
		h := e.construct(callCtx)
		if isNil(h) {
			return nil, fmt.Errorf("%w: scoped constructor for %s returned nil", ErrNilHandler, t)
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// Signatures returns every signature registered so far, in registration
// order. Duplicated registrations appear more than once.
func (r *Registry) Signatures() []Signature {
	out := make([]Signature, len(r.signatures))
	copy(out, r.signatures)
	return out
}

// sameIdentity compares handler identities. Pointers compare by address,
// comparable values by value. Non-comparable values never match.
func sameIdentity(a, b any) (same bool) {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
