// Package greenhouse holds the value types shared by the controller: sensor
// readings, their physical ranges, actuators and the process-wide state.
package greenhouse

import (
	"fmt"
	"math"
)

// Kind identifies one of the five measured quantities.
type Kind int

const (
	AmbientTemp Kind = iota
	Humidity
	SoilMoisture
	PH
	ProbeTemp
)

// NumKinds is the number of readings taken per cycle.
const NumKinds = 5

// Kinds lists every sensor kind in acquisition order.
var Kinds = [NumKinds]Kind{AmbientTemp, Humidity, SoilMoisture, PH, ProbeTemp}

// ProbeDisconnected is what the one-wire probe reports when it is missing.
const ProbeDisconnected = -127.0

// AnalogMax is the full-scale value of the board's 12-bit ADC.
const AnalogMax = 4095.0

// AnalogMissing marks an analog channel the board could not sample.
const AnalogMissing = -1.0

// Range is an inclusive physical range.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges is the fixed validity table per kind.
var Ranges = map[Kind]Range{
	AmbientTemp:  {Min: -40.0, Max: 80.0},
	Humidity:     {Min: 0.0, Max: 100.0},
	SoilMoisture: {Min: 0.0, Max: 100.0},
	PH:           {Min: 0.0, Max: 14.0},
	ProbeTemp:    {Min: -40.0, Max: 80.0},
}

type kindInfo struct {
	name     string
	category string
	metric   string
	unit     string
}

var kindInfos = map[Kind]kindInfo{
	AmbientTemp:  {"ambient_temp", "ambient", "temp", "°C"},
	Humidity:     {"ambient_humidity", "ambient", "humidity", "%"},
	SoilMoisture: {"soil_moisture", "soil", "moisture", "%"},
	PH:           {"soil_ph", "soil", "ph", "pH"},
	ProbeTemp:    {"thermo_temp", "thermo", "temp", "°C"},
}

func (k Kind) String() string {
	if info, ok := kindInfos[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Topic returns the telemetry channel for the kind, e.g. greenhouse/soil/ph.
func (k Kind) Topic() string {
	info := kindInfos[k]
	return TopicRoot + "/" + info.category + "/" + info.metric
}

// Unit is the physical unit of the validated value.
func (k Kind) Unit() string {
	return kindInfos[k].unit
}

// Reading is one sample of one sensor. Raw is what the driver returned and
// Value the physical quantity derived from it. Valid is set by Validate.
type Reading struct {
	Kind  Kind
	Raw   float64
	Value float64
	Valid bool
}

// NewReading wraps a raw driver value; it is not valid until validated.
func NewReading(kind Kind, raw float64) Reading {
	return Reading{Kind: kind, Raw: raw, Value: raw}
}

// RescaleSoil maps the inverted capacitive soil probe range (4095 dry,
// 0 wet) onto 0..100 %.
func RescaleSoil(raw float64) float64 {
	return (AnalogMax - raw) * 100.0 / AnalogMax
}

// RescalePH maps the analog pH probe range 0..4095 onto 0..14.
func RescalePH(raw float64) float64 {
	return raw * 14.0 / AnalogMax
}

// Validate rescales analog kinds and classifies the reading against Ranges.
func Validate(r Reading) Reading {
	out := Reading{Kind: r.Kind, Raw: r.Raw, Value: r.Raw}
	if math.IsNaN(r.Raw) || math.IsInf(r.Raw, 0) {
		return out
	}
	switch r.Kind {
	case AmbientTemp, ProbeTemp:
		if r.Raw == ProbeDisconnected {
			return out
		}
	case SoilMoisture:
		out.Value = RescaleSoil(r.Raw)
	case PH:
		out.Value = RescalePH(r.Raw)
	}
	rng, ok := Ranges[r.Kind]
	out.Valid = ok && rng.Contains(out.Value)
	return out
}

// Cycle is one reading per kind, indexed in Kinds order.
type Cycle [NumKinds]Reading

// ValidateAll validates a full cycle of readings.
func ValidateAll(in Cycle) Cycle {
	var out Cycle
	for i, r := range in {
		out[i] = Validate(r)
	}
	return out
}
