// Package metrics exposes the controller's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// Metrics groups the instruments of one controller.
type Metrics struct {
	reg *prometheus.Registry

	Cycles          prometheus.Counter
	Published       *prometheus.CounterVec
	Invalid         *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Commands        *prometheus.CounterVec
	CommandsDropped prometheus.Counter
	RelayFailures   *prometheus.CounterVec
	ConnectAttempts *prometheus.CounterVec
	Reading         *prometheus.GaugeVec
	Actuator        *prometheus.GaugeVec
	Phase           prometheus.Gauge
}

// New creates and registers the instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "cycles_total",
			Help: "Control loop cycles completed.",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "readings_published_total",
			Help: "Valid readings published, by sensor.",
		}, []string{"sensor"}),
		Invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "readings_invalid_total",
			Help: "Readings rejected by validation, by sensor.",
		}, []string{"sensor"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "publish_failures_total",
			Help: "Publishes the broker did not accept, by topic.",
		}, []string{"topic"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "commands_applied_total",
			Help: "Actuation commands applied, by actuator and source.",
		}, []string{"actuator", "source"}),
		CommandsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "commands_dropped_total",
			Help: "Commands dropped because the queue was full.",
		}),
		RelayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "relay_failures_total",
			Help: "Relay writes the board rejected, by actuator.",
		}, []string{"actuator"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse", Name: "connect_attempts_total",
			Help: "Link and broker connection attempts, by target and result.",
		}, []string{"target", "result"}),
		Reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "greenhouse", Name: "reading",
			Help: "Last valid reading, by sensor.",
		}, []string{"sensor"}),
		Actuator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "greenhouse", Name: "actuator_on",
			Help: "1 when the actuator is on.",
		}, []string{"actuator"}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "greenhouse", Name: "connectivity_phase",
			Help: "0 disconnected, 1 connecting, 2 connected, 3 fatal.",
		}),
	}
	m.reg.MustRegister(
		m.Cycles, m.Published, m.Invalid, m.PublishFailures, m.Commands,
		m.CommandsDropped, m.RelayFailures, m.ConnectAttempts, m.Reading,
		m.Actuator, m.Phase,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ConnectAttempt implements supervisor.Observer.
func (m *Metrics) ConnectAttempt(target string, ok bool) {
	result := "fail"
	if ok {
		result = "ok"
	}
	m.ConnectAttempts.WithLabelValues(target, result).Inc()
}

// ObservePhase records the supervisor phase.
func (m *Metrics) ObservePhase(p greenhouse.Phase) {
	m.Phase.Set(float64(p))
}

// ObserveActuator records an actuator state.
func (m *Metrics) ObserveActuator(s greenhouse.ActuatorState) {
	v := 0.0
	if s.On {
		v = 1
	}
	m.Actuator.WithLabelValues(s.Actuator.String()).Set(v)
}
