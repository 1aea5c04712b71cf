package observe

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/eventbus"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics holds the Prometheus collectors fed by bus hooks.
type Metrics struct {
	dispatched *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	noHandler  *prometheus.CounterVec
	multiple   *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them with
// reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "eventbus",
				Name:      "dispatched_total",
				Help:      "Total number of handler calls by handlable type, mode and status",
			},
			[]string{"handlable", "mode", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "eventbus",
				Name:      "dispatch_duration_seconds",
				Help:      "Handler call duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handlable", "mode"},
		),
		noHandler: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "eventbus",
				Name:      "no_handler_total",
				Help:      "Total number of dispatches that resolved no handler",
			},
			[]string{"handlable", "mode"},
		),
		multiple: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "eventbus",
				Name:      "multiple_handlers_total",
				Help:      "Total number of strict dispatches that resolved more than one handler",
			},
			[]string{"handlable"},
		),
	}

	for _, c := range []prometheus.Collector{m.dispatched, m.duration, m.noHandler, m.multiple} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Options returns the bus options that feed m.
func (m *Metrics) Options() []eventbus.Option {
	return []eventbus.Option{
		eventbus.WithOnSuccess(func(_ context.Context, info eventbus.Info, d time.Duration) {
			m.observe(info, statusOK, d)
		}),
		eventbus.WithOnFailure(func(_ context.Context, info eventbus.Info, _ error, d time.Duration) {
			m.observe(info, statusError, d)
		}),
		eventbus.WithOnNoHandler(func(_ context.Context, info eventbus.Info) {
			m.noHandler.WithLabelValues(info.Handlable, string(info.Mode)).Inc()
		}),
		eventbus.WithOnMultipleHandlers(func(_ context.Context, info eventbus.Info, _ int) {
			m.multiple.WithLabelValues(info.Handlable).Inc()
		}),
	}
}

func (m *Metrics) observe(info eventbus.Info, status string, d time.Duration) {
	mode := string(info.Mode)
	m.dispatched.WithLabelValues(info.Handlable, mode, status).Inc()
	m.duration.WithLabelValues(info.Handlable, mode).Observe(d.Seconds())
}
