// Package metrics exposes inference, queue and store figures in the
// Prometheus exposition format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/vqa-lens/backend/internal/service/inference"
)

const namespace = "vqa"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	inference  *prometheus.HistogramVec
	queueWait  *prometheus.HistogramVec
	operations *prometheus.CounterVec
}

var _ inference.Observer = (*Metrics)(nil)

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inference: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent inside the model per generate call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"device", "engine", "outcome"}),
		queueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Time a request waited for the device.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"device"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Completed service operations by outcome kind.",
		}, []string{"op", "kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inference,
		m.queueWait,
		m.operations,
	)
	return m
}

// QueueWait implements inference.Observer.
func (m *Metrics) QueueWait(device string, d time.Duration) {
	m.queueWait.WithLabelValues(device).Observe(d.Seconds())
}

// Inference implements inference.Observer.
func (m *Metrics) Inference(device, engine string, d time.Duration, err error) {
	m.inference.WithLabelValues(device, engine, outcome(err)).Observe(d.Seconds())
}

// Operation counts one finished service call. kind is "ok" on success.
func (m *Metrics) Operation(op, kind string) {
	m.operations.WithLabelValues(op, kind).Inc()
}

// TrackQueue exports the live depth of a queue.
func (m *Metrics) TrackQueue(device string, depth func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Requests waiting for or running on the device.",
		ConstLabels: prometheus.Labels{"device": device},
	}, func() float64 { return float64(depth()) }))
}

// TrackStore exports the entry count of a store. Scrapes that cannot read
// the count within a second report -1.
func (m *Metrics) TrackStore(name string, size func(ctx context.Context) (int, error)) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "store_entries",
		Help:        "Entries currently held by a store.",
		ConstLabels: prometheus.Labels{"store": name},
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := size(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, inference.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, inference.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
