// Package metrics provides Prometheus collectors for the serve loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch holds collectors for one server's exchange handling.
type Dispatch struct {
	// ExchangesTotal counts dispositions by outcome label (handled,
	// handler_error, unknown_op, truncated, notification,
	// recv_failed, port_closed).
	ExchangesTotal *prometheus.CounterVec

	// RejectionsTotal counts protocol-level rejections by reason.
	RejectionsTotal *prometheus.CounterVec

	// NotificationsTotal counts kernel notifications forwarded to the
	// server's notification hook.
	NotificationsTotal prometheus.Counter

	// ExchangeDuration observes the wall time of one dispatch call,
	// receive included.
	ExchangeDuration prometheus.Histogram
}

// NewDispatch creates dispatch collectors registered with reg, or the
// default registerer when reg is nil. server labels the metrics so
// several servers can share a registry.
func NewDispatch(reg prometheus.Registerer, server string) *Dispatch {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"server": server}

	return &Dispatch{
		ExchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "taskrt_dispatch_exchanges_total",
				Help:        "Total dispatched exchanges by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "taskrt_dispatch_rejections_total",
				Help:        "Protocol-level rejections by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		NotificationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "taskrt_dispatch_notifications_total",
				Help:        "Kernel notifications forwarded to the server",
				ConstLabels: labels,
			},
		),
		ExchangeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "taskrt_dispatch_exchange_duration_seconds",
				Help:        "Duration of one dispatch call, receive included",
				ConstLabels: labels,
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
	}
}

// Observe records the disposition of one dispatch call.
func (m *Dispatch) Observe(outcome string, d time.Duration) {
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
	m.ExchangeDuration.Observe(d.Seconds())
	switch outcome {
	case "unknown_op", "truncated":
		m.RejectionsTotal.WithLabelValues(outcome).Inc()
	case "notification":
		m.NotificationsTotal.Inc()
	}
}
