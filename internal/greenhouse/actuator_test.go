package greenhouse

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		topic   string
		payload string
		want    Command
		wantErr bool
	}{
		{"greenhouse/control/fan", "1", Command{Actuator: Fan, On: true, Source: "mqtt"}, false},
		{"greenhouse/control/fan", "ON", Command{Actuator: Fan, On: true, Source: "mqtt"}, false},
		{"greenhouse/control/vent", "true", Command{Actuator: Vent, On: true, Source: "mqtt"}, false},
		{"greenhouse/control/heater", "off", Command{Actuator: Heater, On: false, Source: "mqtt"}, false},
		{"greenhouse/control/heater", "on", Command{Actuator: Heater, On: false, Source: "mqtt"}, false},
		{"greenhouse/control/heater", "TRUE", Command{Actuator: Heater, On: false, Source: "mqtt"}, false},
		{"greenhouse/control/heater", "", Command{Actuator: Heater, On: false, Source: "mqtt"}, false},
		{"greenhouse/control/pump", "ON", Command{}, true},
		{"greenhouse/control/Fan", "ON", Command{}, true},
		{"greenhouse/status/fan", "ON", Command{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.topic+"="+tc.payload, func(t *testing.T) {
			got, err := ParseCommand(tc.topic, []byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestParseActuatorUnknown(t *testing.T) {
	_, err := ParseActuator("sprinkler")
	if !errors.Is(err, ErrUnknownActuator) {
		t.Fatalf("err=%v want ErrUnknownActuator", err)
	}
}

func TestStateStartsOffAndTracksChanges(t *testing.T) {
	s := NewState()
	for _, st := range s.Actuators() {
		if st.On {
			t.Fatalf("%s starts on", st.Actuator)
		}
	}
	if !s.SetActuator(Heater, true) {
		t.Fatalf("first switch-on not reported as change")
	}
	if s.SetActuator(Heater, true) {
		t.Fatalf("repeat switch-on reported as change")
	}
	if got := s.Actuator(Heater).Label(); got != "ON" {
		t.Fatalf("label=%q", got)
	}
	if got := Fan.StatusTopic(); got != "greenhouse/status/fan" {
		t.Fatalf("status topic=%q", got)
	}
}

func TestControlTopicParsesBack(t *testing.T) {
	for _, a := range Actuators {
		cmd, err := ParseCommand(a.ControlTopic(), []byte("ON"))
		if err != nil || cmd.Actuator != a || !cmd.On {
			t.Fatalf("%s: cmd=%+v err=%v", a.ControlTopic(), cmd, err)
		}
	}
}
