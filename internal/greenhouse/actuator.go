package greenhouse

import (
	"errors"
	"fmt"
	"strings"
)

// MQTT topic layout.
const (
	TopicRoot     = "greenhouse"
	StatusPrefix  = TopicRoot + "/status/"
	ControlPrefix = TopicRoot + "/control/"
	ControlFilter = ControlPrefix + "#"
	// ControllerStatusTopic carries the retained online/offline marker.
	ControllerStatusTopic = StatusPrefix + "controller"
	AlertsTopic           = TopicRoot + "/alerts"
)

// Actuator is a relay-driven output.
type Actuator int

const (
	Fan Actuator = iota
	Vent
	Heater
)

// NumActuators is the number of relay outputs.
const NumActuators = 3

// Actuators lists every actuator in publish order.
var Actuators = [NumActuators]Actuator{Fan, Vent, Heater}

var actuatorNames = [NumActuators]string{"fan", "vent", "heater"}

// ErrUnknownActuator is returned for names outside fan/vent/heater.
var ErrUnknownActuator = errors.New("unknown actuator")

func (a Actuator) String() string {
	if a < 0 || int(a) >= NumActuators {
		return fmt.Sprintf("actuator(%d)", int(a))
	}
	return actuatorNames[a]
}

// StatusTopic is greenhouse/status/<actuator>.
func (a Actuator) StatusTopic() string {
	return StatusPrefix + a.String()
}

// ControlTopic is greenhouse/control/<actuator>.
func (a Actuator) ControlTopic() string {
	return ControlPrefix + a.String()
}

// ParseActuator resolves an exact lower-case actuator name.
func ParseActuator(name string) (Actuator, error) {
	for i, n := range actuatorNames {
		if n == name {
			return Actuator(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownActuator, name)
}

// ActuatorState is the desired and driven state of one relay.
type ActuatorState struct {
	Actuator Actuator
	On       bool
}

// Label renders the state as published on the status topics.
func (s ActuatorState) Label() string {
	return OnOff(s.On)
}

// OnOff renders a boolean as "ON" or "OFF".
func OnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// Truthy decodes a command payload. Only ON, 1 and true switch on; the
// match is case-sensitive.
func Truthy(payload string) bool {
	switch payload {
	case "ON", "1", "true":
		return true
	}
	return false
}

// Command asks for one actuator to be switched.
type Command struct {
	Actuator Actuator
	On       bool
	Source   string
}

// ParseCommand decodes a message received on greenhouse/control/<actuator>.
func ParseCommand(topic string, payload []byte) (Command, error) {
	name, ok := strings.CutPrefix(topic, ControlPrefix)
	if !ok {
		return Command{}, fmt.Errorf("not a control topic: %q", topic)
	}
	a, err := ParseActuator(name)
	if err != nil {
		return Command{}, err
	}
	return Command{Actuator: a, On: Truthy(string(payload)), Source: "mqtt"}, nil
}
