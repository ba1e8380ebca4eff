// Package metrics exposes Prometheus instrumentation for the feed, the
// session and the renderers. All methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pricechart"

// Metrics groups every collector the service records.
type Metrics struct {
	ticks       *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	reconnects  *prometheus.CounterVec
	state       *prometheus.GaugeVec
	activations prometheus.Counter
	redraws     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: newCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks parsed from the market-data stream.",
		}, []string{"exchange"}),
		dropped: newCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Stream messages discarded as malformed.",
		}, []string{"exchange"}),
		reconnects: newCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after an unexpected close or failed dial.",
		}, []string{"exchange"}),
		state: newGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current stream connection state (0 disconnected, 1 connecting, 2 connected, 3 stopped).",
		}, []string{"exchange"}),
		activations: newCounter(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Selection activations handled by the chart session.",
		}),
		redraws: newCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redraws_total",
			Help:      "Chart redraws by kind (build or update).",
		}, []string{"kind"}),
	}
	return m
}

func (m *Metrics) Tick(exchange string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(exchange).Inc()
}

func (m *Metrics) Dropped(exchange string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(exchange).Inc()
}

func (m *Metrics) Reconnect(exchange string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(exchange).Inc()
}

// State records the numeric connection state for exchange.
func (m *Metrics) State(exchange string, state int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(exchange).Set(float64(state))
}

func (m *Metrics) Activation() {
	if m == nil {
		return
	}
	m.activations.Inc()
}

// Redraw counts a chart build ("build") or no-animation update ("update").
func (m *Metrics) Redraw(kind string) {
	if m == nil {
		return
	}
	m.redraws.WithLabelValues(kind).Inc()
}

func newCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	reg.MustRegister(c)
	return c
}

func newCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	reg.MustRegister(c)
	return c
}

func newGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	reg.MustRegister(g)
	return g
}
