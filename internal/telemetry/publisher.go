// Package telemetry publishes validated readings and actuator states.
package telemetry

import (
	"log/slog"
	"strconv"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/metrics"
)

// Sink is the publishing half of the messaging session.
type Sink interface {
	Publish(topic, payload string) error
}

// Report counts what one cycle did.
type Report struct {
	Published int
	Failed    int
	Invalid   int
}

// Publisher emits one telemetry cycle. It never retries: a failed publish
// is logged and the broker check at the top of the next cycle takes over.
type Publisher struct {
	sink    Sink
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher returns a publisher; m may be nil.
func NewPublisher(sink Sink, m *metrics.Metrics, log *slog.Logger) *Publisher {
	return &Publisher{sink: sink, log: log.With("component", "telemetry"), metrics: m}
}

// FormatValue renders a reading with two decimals.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// PublishCycle publishes every valid reading and every actuator state.
// Invalid readings are only logged.
func (p *Publisher) PublishCycle(readings greenhouse.Cycle, actuators [greenhouse.NumActuators]greenhouse.ActuatorState) Report {
	var rep Report
	for _, r := range readings {
		name := r.Kind.String()
		if !r.Valid {
			rep.Invalid++
			p.log.Warn("invalid reading, not published", "sensor", name, "raw", r.Raw, "value", r.Value)
			if p.metrics != nil {
				p.metrics.Invalid.WithLabelValues(name).Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.Reading.WithLabelValues(name).Set(r.Value)
		}
		if p.send(r.Kind.Topic(), FormatValue(r.Value)) {
			rep.Published++
			if p.metrics != nil {
				p.metrics.Published.WithLabelValues(name).Inc()
			}
		} else {
			rep.Failed++
		}
	}
	for _, a := range actuators {
		if p.send(a.Actuator.StatusTopic(), a.Label()) {
			rep.Published++
		} else {
			rep.Failed++
		}
	}
	return rep
}

func (p *Publisher) send(topic, payload string) bool {
	if err := p.sink.Publish(topic, payload); err != nil {
		p.log.Error("publish failed", "topic", topic, "payload", payload, "err", err)
		if p.metrics != nil {
			p.metrics.PublishFailures.WithLabelValues(topic).Inc()
		}
		return false
	}
	p.log.Debug("published", "topic", topic, "payload", payload)
	return true
}
