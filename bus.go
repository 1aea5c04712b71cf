package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Publisher delivers handlables to their transport. The queue package
// provides atomic and bulk implementations.
type Publisher interface {
	Publish(ctx context.Context, handlable any) error
	PublishAll(ctx context.Context, handlables []any) error
}

// Resolver resolves the handlers of a handlable. *Registry implements it.
type Resolver interface {
	Resolve(handlable any, metadata any, callCtx any) ([]Handler, error)
}

// Bus publishes handlables through a Publisher and consumes them by
// dispatching to the handlers a Resolver returns.
//
// Usage:
//  1. Create a Registry and register handlers
//  2. Create a bus with New
//  3. Attach a publisher with SetPublisher
//  4. Publish, or consume delivered handlables with
//     ConsumeByStrictlySingleHandler and ConsumeByMultipleHandlers
//
// Bus is safe for concurrent use.
type Bus struct {
	resolver  Resolver
	publisher atomic.Pointer[publisherRef]
	hooks     hooks
	logger    *slog.Logger
}

type publisherRef struct {
	p Publisher
}

// New creates a Bus resolving handlers through resolver.
//
// Example:
//
//	reg := eventbus.NewRegistry()
//	eventbus.RegisterProc(reg, nil, &SendWelcomeEmail{mailer: m})
//
//	bus := eventbus.New(reg,
//	    eventbus.WithLogger(logger),
//	    eventbus.WithOnFailure(func(ctx context.Context, info eventbus.Info, err error, d time.Duration) {
//	        metrics.Incr("eventbus.failure", "type:"+info.Handlable)
//	    }),
//	)
func New(resolver Resolver, opts ...Option) *Bus {
	b := &Bus{
		resolver: resolver,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetPublisher attaches the publisher. It may be called after construction
// to break the cycle between a bus and a publisher that depends on it.
func (b *Bus) SetPublisher(p Publisher) {
	b.publisher.Store(&publisherRef{p: p})
}

func (b *Bus) getPublisher() (Publisher, error) {
	ref := b.publisher.Load()
	if ref == nil || ref.p == nil {
		return nil, ErrPublisherNotSet
	}
	return ref.p, nil
}

// Publish forwards a single handlable to the publisher.
func (b *Bus) Publish(ctx context.Context, handlable any) error {
	p, err := b.getPublisher()
	if err != nil {
		return err
	}
	return p.Publish(ctx, handlable)
}

// PublishAll forwards handlables to the publisher in one call.
func (b *Bus) PublishAll(ctx context.Context, handlables []any) error {
	p, err := b.getPublisher()
	if err != nil {
		return err
	}
	return p.PublishAll(ctx, handlables)
}

// ConsumeByStrictlySingleHandler dispatches handlable to exactly one
// handler. Every failure is reported inside the returned Result:
//   - no handler: *NotFoundError
//   - more than one handler: *MultipleHandlersFoundError
//   - handler error or panic: *HandlerThrownError
func (b *Bus) ConsumeByStrictlySingleHandler(ctx context.Context, handlable any, opts ...CallOption) Result[any] {
	cfg := newCallConfig(opts)
	info := Info{Handlable: typeName(handlable), RoutingMetadata: cfg.metadata, Mode: ModeSingle}

	ctx = b.callOnResolve(ctx, info)
	handlers, err := b.resolve(ctx, handlable, cfg, info)
	if err != nil {
		return Failure[any](err)
	}

	if len(handlers) > 1 {
		b.callOnMultipleHandlers(ctx, info, len(handlers))
		b.logger.WarnContext(ctx, "multiple handlers for strict dispatch",
			slog.String("handlable", info.Handlable),
			slog.Int("count", len(handlers)))
		return Failure[any](&MultipleHandlersFoundError{
			Handlable:       info.Handlable,
			RoutingMetadata: cfg.metadata,
			Count:           len(handlers),
		})
	}

	return b.invoke(withCallContext(ctx, cfg.callCtx), handlers[0], handlable, info)
}

// ConsumeByMultipleHandlers dispatches handlable to every resolved handler
// concurrently and returns one Result per handler in resolution order. A
// failing handler does not affect the others. The error is non-nil only when
// resolution fails, including when no handler is registered.
func (b *Bus) ConsumeByMultipleHandlers(ctx context.Context, handlable any, opts ...CallOption) ([]Result[any], error) {
	cfg := newCallConfig(opts)
	info := Info{Handlable: typeName(handlable), RoutingMetadata: cfg.metadata, Mode: ModeMultiple}

	ctx = b.callOnResolve(ctx, info)
	handlers, err := b.resolve(ctx, handlable, cfg, info)
	if err != nil {
		return nil, err
	}

	ctx = withCallContext(ctx, cfg.callCtx)
	results := make([]Result[any], len(handlers))

	var g errgroup.Group
	for i, h := range handlers {
		hi := info
		hi.Index = i
		g.Go(func() error {
			results[i] = b.invoke(ctx, h, handlable, hi)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Consume runs strict single dispatch and converts the result to R.
func Consume[R any](ctx context.Context, b *Bus, handlable any, opts ...CallOption) Result[R] {
	return Convert[R](b.ConsumeByStrictlySingleHandler(ctx, handlable, opts...))
}

// resolve returns at least one handler or an error.
func (b *Bus) resolve(ctx context.Context, handlable any, cfg callConfig, info Info) ([]Handler, error) {
	handlers, err := b.resolver.Resolve(handlable, cfg.metadata, cfg.callCtx)
	if err != nil {
		return nil, fmt.Errorf("eventbus: resolve %s: %w", info.Handlable, err)
	}
	if len(handlers) == 0 {
		b.callOnNoHandler(ctx, info)
		b.logger.WarnContext(ctx, "no handler",
			slog.String("handlable", info.Handlable),
			slog.Any("routing_metadata", cfg.metadata))
		return nil, &NotFoundError{Handlable: info.Handlable, RoutingMetadata: cfg.metadata}
	}
	return handlers, nil
}

func (b *Bus) invoke(ctx context.Context, h Handler, handlable any, info Info) Result[any] {
	ctx = b.callOnDispatch(ctx, info)

	start := time.Now()
	v, err := safeHandle(ctx, h, handlable)
	duration := time.Since(start)

	if err != nil {
		err = &HandlerThrownError{Handlable: info.Handlable, RoutingMetadata: info.RoutingMetadata, Err: err}
		b.callOnFailure(ctx, info, err, duration)
		b.logger.ErrorContext(ctx, "handler failed",
			slog.String("handlable", info.Handlable),
			slog.Int("index", info.Index),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return Failure[any](err)
	}

	b.callOnSuccess(ctx, info, duration)
	b.logger.DebugContext(ctx, "handler succeeded",
		slog.String("handlable", info.Handlable),
		slog.Int("index", info.Index),
		slog.Duration("duration", duration))
	return Success(v)
}

func safeHandle(ctx context.Context, h Handler, handlable any) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return h.Handle(ctx, handlable)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
