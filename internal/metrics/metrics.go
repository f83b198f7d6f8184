// Package metrics exposes broker counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	connections    prometheus.Gauge
	subscriptions  prometheus.Gauge
	frames         *prometheus.CounterVec
	frameDur       *prometheus.HistogramVec
	published      prometheus.Counter
	delivered      prometheus.Counter
	protocolErrors *prometheus.CounterVec
	logins         *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	connections := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "connections"})
	subscriptions := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "subscriptions"})
	r.MustRegister(connections, subscriptions)

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "frames_received_total"}, []string{"command"})
	frameDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "frame_processing_duration_seconds", Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8)}, []string{"command"})
	r.MustRegister(frames, frameDur)

	published := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_published_total"})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_delivered_total"})
	protocolErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "protocol_errors_total"}, []string{"reason"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "logins_total"}, []string{"status"})
	r.MustRegister(published, delivered, protocolErrors, logins)

	return &Metrics{
		registry:       r,
		connections:    connections,
		subscriptions:  subscriptions,
		frames:         frames,
		frameDur:       frameDur,
		published:      published,
		delivered:      delivered,
		protocolErrors: protocolErrors,
		logins:         logins,
	}
}

// ConnectionsChanged implements connection.Observer.
func (m *Metrics) ConnectionsChanged(delta int) {
	if m == nil {
		return
	}
	m.connections.Add(float64(delta))
}

// SubscriptionsChanged implements connection.Observer.
func (m *Metrics) SubscriptionsChanged(delta int) {
	if m == nil {
		return
	}
	m.subscriptions.Add(float64(delta))
}

func (m *Metrics) FrameProcessed(command string, since time.Time) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(command).Inc()
	m.frameDur.WithLabelValues(command).Observe(time.Since(since).Seconds())
}

func (m *Metrics) MessagePublished(recipients int) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.delivered.Add(float64(recipients))
}

func (m *Metrics) ProtocolError(reason string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) Login(status string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(status).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
