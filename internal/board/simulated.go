package board

import (
	"math/rand"
	"sync"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// Simulated stands in for the board on hosts without one. Readings drift
// randomly and respond to the relays: the heater warms, fan and vent cool
// and dry the air.
type Simulated struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	temp   float64
	hum    float64
	soil   float64
	ph     float64
	relays [greenhouse.NumActuators]bool
}

// NewSimulated seeds a simulated board.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{
		rnd:  rand.New(rand.NewSource(seed)),
		temp: 22,
		hum:  55,
		soil: 2200,
		ph:   1900,
	}
}

// Sample implements controller.SensorBoard.
func (s *Simulated) Sample() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drift := func(v, spread, lo, hi float64) float64 {
		v += (s.rnd.Float64()*2 - 1) * spread
		return min(max(v, lo), hi)
	}
	if s.relays[greenhouse.Heater] {
		s.temp += 0.4
	}
	if s.relays[greenhouse.Fan] {
		s.temp -= 0.2
		s.hum -= 0.5
	}
	if s.relays[greenhouse.Vent] {
		s.temp -= 0.1
		s.hum -= 0.3
	}
	s.temp = drift(s.temp, 0.3, 5, 45)
	s.hum = drift(s.hum, 1.0, 10, 95)
	s.soil = drift(s.soil, 15, 0, greenhouse.AnalogMax)
	s.ph = drift(s.ph, 5, 0, greenhouse.AnalogMax)

	return Sample{
		AmbientTemp: s.temp,
		Humidity:    s.hum,
		Soil:        s.soil,
		PH:          s.ph,
		Probe:       s.temp - 1.5,
	}, nil
}

// Drive implements controller.Relays.
func (s *Simulated) Drive(a greenhouse.Actuator, on bool) error {
	s.mu.Lock()
	s.relays[a] = on
	s.mu.Unlock()
	return nil
}

// Relay reports the simulated relay state.
func (s *Simulated) Relay(a greenhouse.Actuator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relays[a]
}
