package eventbus

import (
	"context"
	"log/slog"
	"time"
)

// Mode is the dispatch strategy of a consume call.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeMultiple Mode = "multiple"
)

// Info describes a dispatch to hooks.
type Info struct {
	// Handlable is the dynamic type name of the handlable.
	Handlable string

	// RoutingMetadata is the metadata the handlers were resolved with.
	RoutingMetadata any

	Mode Mode

	// Index is the position of the handler among the resolved handlers.
	// It is zero for hooks that run before resolution.
	Index int
}

// OnResolveFunc is called before handlers are resolved.
// Use this to enrich the context with logging fields or trace spans.
// The returned context is used for the rest of the dispatch.
type OnResolveFunc func(ctx context.Context, info Info) context.Context

// OnDispatchFunc is called just before each handler executes. The returned
// context is passed to that handler and to its OnSuccess or OnFailure hooks.
type OnDispatchFunc func(ctx context.Context, info Info) context.Context

// OnSuccessFunc is called after a handler completes successfully.
type OnSuccessFunc func(ctx context.Context, info Info, duration time.Duration)

// OnFailureFunc is called after a handler fails or panics.
type OnFailureFunc func(ctx context.Context, info Info, err error, duration time.Duration)

// OnNoHandlerFunc is called when no handler is registered. The dispatch
// still fails with *NotFoundError.
type OnNoHandlerFunc func(ctx context.Context, info Info)

// OnMultipleHandlersFunc is called when strict single dispatch resolves more
// than one handler.
type OnMultipleHandlersFunc func(ctx context.Context, info Info, count int)

// hooks holds all configured hook functions.
type hooks struct {
	onResolve          []OnResolveFunc
	onDispatch         []OnDispatchFunc
	onSuccess          []OnSuccessFunc
	onFailure          []OnFailureFunc
	onNoHandler        []OnNoHandlerFunc
	onMultipleHandlers []OnMultipleHandlersFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for dispatch diagnostics. By default the
// bus logs nothing.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithOnResolve adds a hook called before handler resolution.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	eventbus.WithOnResolve(func(ctx context.Context, info eventbus.Info) context.Context {
//	    return logx.WithCtx(ctx, slog.String("handlable", info.Handlable))
//	})
func WithOnResolve(fn OnResolveFunc) Option {
	return func(b *Bus) {
		b.hooks.onResolve = append(b.hooks.onResolve, fn)
	}
}

// WithOnDispatch adds a hook called just before each handler executes.
// Multiple hooks are called in order, with context chaining through each.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(b *Bus) {
		b.hooks.onDispatch = append(b.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after a handler completes successfully.
//
// Example:
//
//	eventbus.WithOnSuccess(func(ctx context.Context, info eventbus.Info, d time.Duration) {
//	    metrics.Timing("eventbus.success", d, "type:"+info.Handlable)
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(b *Bus) {
		b.hooks.onSuccess = append(b.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after a handler fails.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(b *Bus) {
		b.hooks.onFailure = append(b.hooks.onFailure, fn)
	}
}

// WithOnNoHandler adds a hook called when no handler is registered.
func WithOnNoHandler(fn OnNoHandlerFunc) Option {
	return func(b *Bus) {
		b.hooks.onNoHandler = append(b.hooks.onNoHandler, fn)
	}
}

// WithOnMultipleHandlers adds a hook called when strict single dispatch
// finds more than one handler.
func WithOnMultipleHandlers(fn OnMultipleHandlersFunc) Option {
	return func(b *Bus) {
		b.hooks.onMultipleHandlers = append(b.hooks.onMultipleHandlers, fn)
	}
}

func (b *Bus) callOnResolve(ctx context.Context, info Info) context.Context {
	for _, fn := range b.hooks.onResolve {
		ctx = fn(ctx, info)
	}
	return ctx
}

func (b *Bus) callOnDispatch(ctx context.Context, info Info) context.Context {
	for _, fn := range b.hooks.onDispatch {
		ctx = fn(ctx, info)
	}
	return ctx
}

func (b *Bus) callOnSuccess(ctx context.Context, info Info, d time.Duration) {
	for _, fn := range b.hooks.onSuccess {
		fn(ctx, info, d)
	}
}

func (b *Bus) callOnFailure(ctx context.Context, info Info, err error, d time.Duration) {
	for _, fn := range b.hooks.onFailure {
		fn(ctx, info, err, d)
	}
}

func (b *Bus) callOnNoHandler(ctx context.Context, info Info) {
	for _, fn := range b.hooks.onNoHandler {
		fn(ctx, info)
	}
}

func (b *Bus) callOnMultipleHandlers(ctx context.Context, info Info, count int) {
	for _, fn := range b.hooks.onMultipleHandlers {
		fn(ctx, info, count)
	}
}
