package eventbus

import (
	"context"
	"fmt"
	"reflect"
)

// Handler consumes a handlable and produces an optional result.
//
// Most code should not implement Handler directly. Use the typed adapters
// Func and Proc with Register and RegisterProc, which check the handlable's
// type before calling into user code.
type Handler interface {
	Handle(ctx context.Context, handlable any) (any, error)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, handlable any) (any, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, handlable any) (any, error) {
	return f(ctx, handlable)
}

// Proc (procedure) consumes a handlable without returning a result.
// Use this for event handlers where several handlers may react to the same
// event.
//
// Example:
//
//	type SendWelcomeEmail struct {
//	    mailer Mailer
//	}
//
//	func (p *SendWelcomeEmail) Run(ctx context.Context, e UserCreated) error {
//	    return p.mailer.Send(ctx, e.Email, "welcome")
//	}
type Proc[T any] interface {
	Run(ctx context.Context, handlable T) error
}

// ProcFunc is a function adapter for Proc. Use for simple procedures
// that don't need a struct:
//
//	eventbus.RegisterProc(reg, nil, eventbus.ProcFunc[UserCreated](func(ctx context.Context, e UserCreated) error {
//	    return nil
//	}))
type ProcFunc[T any] func(ctx context.Context, handlable T) error

// Run implements the Proc interface.
func (f ProcFunc[T]) Run(ctx context.Context, handlable T) error {
	return f(ctx, handlable)
}

// Func (function) consumes a handlable and returns a typed result.
// Use this for task processors that are dispatched to exactly one handler.
//
// Example:
//
//	type ResizeImage struct {
//	    store BlobStore
//	}
//
//	func (f *ResizeImage) Call(ctx context.Context, t ResizeTask) (*Thumbnail, error) {
//	    return f.store.Resize(ctx, t.Key, t.Width)
//	}
type Func[T, R any] interface {
	Call(ctx context.Context, handlable T) (R, error)
}

// FuncFunc is a function adapter for Func.
type FuncFunc[T, R any] func(ctx context.Context, handlable T) (R, error)

// Call implements the Func interface.
func (f FuncFunc[T, R]) Call(ctx context.Context, handlable T) (R, error) {
	return f(ctx, handlable)
}

type funcHandler[T, R any] struct {
	fn Func[T, R]
}

func (h funcHandler[T, R]) Handle(ctx context.Context, handlable any) (any, error) {
	t, err := assertHandlable[T](handlable)
	if err != nil {
		return nil, err
	}
	return h.fn.Call(ctx, t)
}

type procHandler[T any] struct {
	proc Proc[T]
}

func (h procHandler[T]) Handle(ctx context.Context, handlable any) (any, error) {
	t, err := assertHandlable[T](handlable)
	if err != nil {
		return nil, err
	}
	return nil, h.proc.Run(ctx, t)
}

func assertHandlable[T any](handlable any) (T, error) {
	t, ok := handlable.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T, want %s", ErrHandlableType, handlable, reflect.TypeFor[T]())
	}
	return t, nil
}

// Register adds a singleton Func handling T under the given routing
// metadata. Registering the same handler value twice for one signature is a
// no-op.
//
// This is a package-level function (not a method) because methods cannot
// have type parameters independent of the receiver.
//
// Example:
//
//	eventbus.Register[ResizeTask, *Thumbnail](reg, queue.RoutingMetadata{Queue: "images", Name: "resize"}, &ResizeImage{store: s})
func Register[T, R any](r *Registry, metadata any, fn Func[T, R]) error {
	if isNil(fn) {
		return ErrNilHandler
	}
	return r.addSingleton(SignatureFor[T](metadata), fn, funcHandler[T, R]{fn: fn})
}

// RegisterProc adds a singleton Proc handling T under the given routing
// metadata.
func RegisterProc[T any](r *Registry, metadata any, p Proc[T]) error {
	if isNil(p) {
		return ErrNilHandler
	}
	return r.addSingleton(SignatureFor[T](metadata), p, procHandler[T]{proc: p})
}

// RegisterScoped adds a Func constructor for T. A fresh Func is built from
// the call context on every resolution. Constructors are de-duplicated as in
// Registry.AddScopedHandler, so closures from one literal count as one.
//
// Example:
//
//	eventbus.RegisterScoped(reg, meta, func(callCtx any) eventbus.Func[ResizeTask, *Thumbnail] {
//	    d := callCtx.(*queue.Delivery)
//	    return &ResizeImage{store: s, jobID: d.Message.ID}
//	})
func RegisterScoped[T, R any](r *Registry, metadata any, ctor func(callCtx any) Func[T, R]) error {
	if ctor == nil {
		return ErrNilHandler
	}
	return r.addScoped(SignatureFor[T](metadata), reflect.ValueOf(ctor).Pointer(), func(callCtx any) Handler {
		fn := ctor(callCtx)
		if isNil(fn) {
			return nil
		}
		return funcHandler[T, R]{fn: fn}
	})
}

// RegisterScopedProc adds a Proc constructor for T. De-duplication follows
// Registry.AddScopedHandler.
func RegisterScopedProc[T any](r *Registry, metadata any, ctor func(callCtx any) Proc[T]) error {
	if ctor == nil {
		return ErrNilHandler
	}
	return r.addScoped(SignatureFor[T](metadata), reflect.ValueOf(ctor).Pointer(), func(callCtx any) Handler {
		p := ctor(callCtx)
		if isNil(p) {
			return nil
		}
		return procHandler[T]{proc: p}
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
