package observe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/eventbus"
)

// Span attribute keys.
const (
	AttrHandlable       = attribute.Key("eventbus.handlable")
	AttrMode            = attribute.Key("eventbus.mode")
	AttrIndex           = attribute.Key("eventbus.handler.index")
	AttrRoutingMetadata = attribute.Key("eventbus.routing_metadata")
)

// Tracing returns bus options that wrap every handler call in a span named
// "eventbus.dispatch <type>". The span is a child of the span in the
// dispatch context, and handlers see it in their context. Failed calls
// record the error and set an error status.
func Tracing(tracer trace.Tracer) []eventbus.Option {
	return []eventbus.Option{
		eventbus.WithOnDispatch(func(ctx context.Context, info eventbus.Info) context.Context {
			attrs := []attribute.KeyValue{
				AttrHandlable.String(info.Handlable),
				AttrMode.String(string(info.Mode)),
				AttrIndex.Int(info.Index),
			}
			if info.RoutingMetadata != nil {
				attrs = append(attrs, AttrRoutingMetadata.String(fmt.Sprint(info.RoutingMetadata)))
			}
			ctx, _ = tracer.Start(ctx, "eventbus.dispatch "+info.Handlable,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(attrs...))
			return ctx
		}),
		eventbus.WithOnSuccess(func(ctx context.Context, _ eventbus.Info, _ time.Duration) {
			span := trace.SpanFromContext(ctx)
			span.SetStatus(codes.Ok, "")
			span.End()
		}),
		eventbus.WithOnFailure(func(ctx context.Context, _ eventbus.Info, err error, _ time.Duration) {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}),
		eventbus.WithOnNoHandler(func(ctx context.Context, info eventbus.Info) {
			trace.SpanFromContext(ctx).AddEvent("eventbus.no_handler",
				trace.WithAttributes(AttrHandlable.String(info.Handlable)))
		}),
	}
}
