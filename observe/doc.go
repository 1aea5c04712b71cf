// Package observe instruments an eventbus.Bus through its hooks.
//
// Metrics records Prometheus counters and a duration histogram per
// handlable type. Tracing starts an OpenTelemetry span around every handler
// call. Both return bus options and can be combined:
//
//	m, err := observe.NewMetrics(prometheus.DefaultRegisterer, "orders")
//	if err != nil {
//	    return err
//	}
//	opts := append(m.Options(), observe.Tracing(otel.Tracer("orders"))...)
//	bus := eventbus.New(reg, opts...)
package observe
