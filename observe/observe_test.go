package observe

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/eventbus"
)

type ping struct{}

type boom struct{}

type lost struct{}

type dup struct{}

func newRegistry(t *testing.T) *eventbus.Registry {
	t.Helper()
	reg := eventbus.NewRegistry()
	require.NoError(t, eventbus.RegisterProc[ping](reg, nil, eventbus.ProcFunc[ping](func(context.Context, ping) error {
		return nil
	})))
	require.NoError(t, eventbus.RegisterProc[boom](reg, nil, eventbus.ProcFunc[boom](func(context.Context, boom) error {
		return errors.New("boom")
	})))
	for range 2 {
		require.NoError(t, eventbus.RegisterProc[dup](reg, nil, eventbus.ProcFunc[dup](func(context.Context, dup) error {
			return nil
		})))
	}
	return reg
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	m, err := NewMetrics(prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	bus := eventbus.New(newRegistry(t), m.Options()...)

	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, ping{}).IsSuccess())
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, ping{}).IsSuccess())
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, boom{}).IsError())
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, lost{}).IsError())
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, dup{}).IsError())
	results, err := bus.ConsumeByMultipleHandlers(ctx, dup{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("observe.ping", "single", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("observe.boom", "single", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("observe.dup", "multiple", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.noHandler.WithLabelValues("observe.lost", "single")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.multiple.WithLabelValues("observe.dup")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.duration))
}

func TestMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	_, err = NewMetrics(reg, "test")
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("eventbus-test")

	reg := newRegistry(t)
	var inHandler trace.SpanContext
	require.NoError(t, eventbus.RegisterProc[lost](reg, "traced", eventbus.ProcFunc[lost](func(ctx context.Context, _ lost) error {
		inHandler = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})))

	bus := eventbus.New(reg, Tracing(tracer)...)

	ctx, parent := tracer.Start(context.Background(), "parent")
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, lost{}, eventbus.WithRoutingMetadata("traced")).IsSuccess())
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, boom{}).IsError())
	require.True(t, bus.ConsumeByStrictlySingleHandler(ctx, lost{}).IsError())
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	ok := spans[0]
	assert.Equal(t, "eventbus.dispatch observe.lost", ok.Name())
	assert.Equal(t, codes.Ok, ok.Status().Code)
	assert.Equal(t, trace.SpanKindConsumer, ok.SpanKind())
	assert.Equal(t, parent.SpanContext().SpanID(), ok.Parent().SpanID())
	assert.Equal(t, ok.SpanContext().SpanID(), inHandler.SpanID())
	assert.Contains(t, ok.Attributes(), AttrRoutingMetadata.String("traced"))
	assert.Contains(t, ok.Attributes(), AttrMode.String("single"))

	failed := spans[1]
	assert.Equal(t, "eventbus.dispatch observe.boom", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)

	root := spans[2]
	assert.Equal(t, "parent", root.Name())
	require.Len(t, root.Events(), 1)
	assert.Equal(t, "eventbus.no_handler", root.Events()[0].Name)
}
