// Package metrics exposes Prometheus instrumentation for stream subscribers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bux-stream/core/state"
)

const namespace = "bux_stream"

// Collector records subscriber activity. It satisfies subscriber.Observer.
type Collector struct {
	registry       *prometheus.Registry
	events         *prometheus.CounterVec
	deliveryFaults *prometheus.CounterVec
	connections    *prometheus.CounterVec
	connState      *prometheus.GaugeVec
}

// NewCollector creates a Collector registered on its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound frames dispatched to handlers.",
		}, []string{"action"}),
		deliveryFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_faults_total",
			Help:      "Handler failures during dispatch.",
		}, []string{"action"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connection attempts by outcome.",
		}, []string{"action", "outcome"}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=Idle 1=Connecting 2=Streaming 3=Closed).",
		}, []string{"action"}),
	}

	c.registry.MustRegister(c.events, c.deliveryFaults, c.connections, c.connState)
	return c
}

// StateChanged records a state transition.
func (c *Collector) StateChanged(action string, from, to state.ConnState) {
	c.connState.WithLabelValues(action).Set(float64(to))

	switch {
	case to == state.StateStreaming:
		c.connections.WithLabelValues(action, "established").Inc()
	case from == state.StateConnecting && to == state.StateClosed:
		c.connections.WithLabelValues(action, "failed").Inc()
	}
}

// EventReceived records one dispatched frame.
func (c *Collector) EventReceived(action string) {
	c.events.WithLabelValues(action).Inc()
}

// DeliveryFault records one failed handler invocation.
func (c *Collector) DeliveryFault(action string, err error) {
	c.deliveryFaults.WithLabelValues(action).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
