// Package metrics exposes Prometheus collectors for the HTTP surface and the
// order lifecycle. Every recording method is safe on a nil *Collector so
// services can run without metrics in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labflow"

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	OrdersTotal       *prometheus.CounterVec
	RecordTransitions *prometheus.CounterVec
	Interpretations   *prometheus.CounterVec
	SequenceCodes     *prometheus.CounterVec
	ContainersPlanned prometheus.Counter
	PaymentsTotal     *prometheus.CounterVec
	PublishFailures   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "events_total",
			Help:      "Order-level lifecycle events (created, updated, cancelled, approved, unapproved).",
		}, []string{"event"}),

		RecordTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "transitions_total",
			Help:      "Test record transitions (received, resulted, rejected, cancelled).",
		}, []string{"transition"}),

		Interpretations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "interpretations_total",
			Help:      "Entered results by interpretation flag.",
		}, []string{"flag"}),

		SequenceCodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "codes_total",
			Help:      "Generated codes by kind and outcome.",
		}, []string{"kind", "outcome"}),

		ContainersPlanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "specimen",
			Name:      "containers_planned_total",
			Help:      "Container instances produced by specimen allocation.",
		}),

		PaymentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Recorded payments by discount type.",
		}, []string{"discount_type"}),

		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "publish_failures_total",
			Help:      "Activity events that could not be published to Kafka.",
		}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Collector) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// Middleware records request count and latency per matched route.
func (m *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Collector) OrderEvent(event string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(event).Inc()
}

func (m *Collector) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.RecordTransitions.WithLabelValues(transition).Inc()
}

func (m *Collector) Interpretation(flag string) {
	if m == nil {
		return
	}
	if flag == "" {
		flag = "none"
	}
	m.Interpretations.WithLabelValues(flag).Inc()
}

func (m *Collector) SequenceCode(kind, outcome string) {
	if m == nil {
		return
	}
	m.SequenceCodes.WithLabelValues(kind, outcome).Inc()
}

func (m *Collector) Containers(n int) {
	if m == nil {
		return
	}
	m.ContainersPlanned.Add(float64(n))
}

func (m *Collector) Payment(discountType string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(discountType).Inc()
}

func (m *Collector) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}
