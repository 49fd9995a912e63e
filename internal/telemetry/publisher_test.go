package telemetry

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/metrics"
)

type recordingSink struct {
	sent map[string]string
	fail map[string]bool
	n    int
}

func (s *recordingSink) Publish(topic, payload string) error {
	s.n++
	if s.fail[topic] {
		return errors.New("broker rejected")
	}
	if s.sent == nil {
		s.sent = map[string]string{}
	}
	s.sent[topic] = payload
	return nil
}

func cycle(temp, hum, soil, ph, probe float64) greenhouse.Cycle {
	return greenhouse.ValidateAll(greenhouse.Cycle{
		greenhouse.NewReading(greenhouse.AmbientTemp, temp),
		greenhouse.NewReading(greenhouse.Humidity, hum),
		greenhouse.NewReading(greenhouse.SoilMoisture, soil),
		greenhouse.NewReading(greenhouse.PH, ph),
		greenhouse.NewReading(greenhouse.ProbeTemp, probe),
	})
}

func actuators(fan, vent, heater bool) [greenhouse.NumActuators]greenhouse.ActuatorState {
	return [greenhouse.NumActuators]greenhouse.ActuatorState{
		{Actuator: greenhouse.Fan, On: fan},
		{Actuator: greenhouse.Vent, On: vent},
		{Actuator: greenhouse.Heater, On: heater},
	}
}

func TestPublishCycleAllValid(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, nil, logging.Discard())

	rep := p.PublishCycle(cycle(21.456, 60, 4095, 4095, 19), actuators(true, false, false))
	if rep != (Report{Published: 8}) {
		t.Fatalf("report=%+v", rep)
	}
	want := map[string]string{
		"greenhouse/ambient/temp":     "21.46",
		"greenhouse/ambient/humidity": "60.00",
		"greenhouse/soil/moisture":    "0.00",
		"greenhouse/soil/ph":          "14.00",
		"greenhouse/thermo/temp":      "19.00",
		"greenhouse/status/fan":       "ON",
		"greenhouse/status/vent":      "OFF",
		"greenhouse/status/heater":    "OFF",
	}
	for topic, payload := range want {
		if got := sink.sent[topic]; got != payload {
			t.Errorf("%s=%q want %q", topic, got, payload)
		}
	}
}

func TestInvalidReadingsNeverPublished(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.New()
	p := NewPublisher(sink, m, logging.Discard())

	rep := p.PublishCycle(cycle(math.NaN(), 101, greenhouse.AnalogMissing, 2000, greenhouse.ProbeDisconnected), actuators(false, false, true))
	if rep.Invalid != 4 || rep.Published != 4 || rep.Failed != 0 {
		t.Fatalf("report=%+v", rep)
	}
	for _, topic := range []string{"greenhouse/ambient/temp", "greenhouse/ambient/humidity", "greenhouse/soil/moisture", "greenhouse/thermo/temp"} {
		if _, ok := sink.sent[topic]; ok {
			t.Errorf("invalid reading published on %s", topic)
		}
	}
	// actuator status goes out whatever the sensors say
	if sink.sent["greenhouse/status/heater"] != "ON" {
		t.Fatalf("heater status=%q", sink.sent["greenhouse/status/heater"])
	}
	if got := testutil.ToFloat64(m.Invalid.WithLabelValues("thermo_temp")); got != 1 {
		t.Fatalf("invalid counter=%v", got)
	}
}

func TestPublishFailureContinues(t *testing.T) {
	sink := &recordingSink{fail: map[string]bool{"greenhouse/ambient/temp": true, "greenhouse/status/fan": true}}
	m := metrics.New()
	p := NewPublisher(sink, m, logging.Discard())

	rep := p.PublishCycle(cycle(20, 50, 2000, 2000, 20), actuators(false, false, false))
	if rep.Failed != 2 || rep.Published != 6 {
		t.Fatalf("report=%+v", rep)
	}
	if sink.n != 8 {
		t.Fatalf("publish calls=%d want 8 (no retries)", sink.n)
	}
	if got := testutil.ToFloat64(m.PublishFailures.WithLabelValues("greenhouse/ambient/temp")); got != 1 {
		t.Fatalf("failure counter=%v", got)
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{0: "0.00", -40: "-40.00", 7.005: "7.00", 99.999: "100.00", 3.14159: "3.14"}
	for in, want := range cases {
		if got := FormatValue(in); got != want {
			t.Errorf("FormatValue(%v)=%q want %q", in, got, want)
		}
	}
}
