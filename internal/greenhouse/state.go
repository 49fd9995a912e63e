package greenhouse

import (
	"sync"
	"time"
)

// Phase is the connectivity phase as seen by the supervisor.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Fatal
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// State is the single controller instance's process-wide state. The loop
// goroutine is the only writer; the mutex lets HTTP handlers take snapshots.
type State struct {
	mu        sync.RWMutex
	actuators [NumActuators]ActuatorState
	readings  Cycle
	lastCycle time.Time
	cycles    uint64
	phase     Phase
}

// NewState returns a state with every actuator off.
func NewState() *State {
	s := &State{}
	for i, a := range Actuators {
		s.actuators[i] = ActuatorState{Actuator: a}
	}
	for i, k := range Kinds {
		s.readings[i] = Reading{Kind: k}
	}
	return s
}

// SetActuator records the desired state and reports whether it changed.
func (s *State) SetActuator(a Actuator, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.actuators[a].On != on
	s.actuators[a].On = on
	return changed
}

// Actuators returns a copy of all actuator states.
func (s *State) Actuators() [NumActuators]ActuatorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actuators
}

// Actuator returns the state of one actuator.
func (s *State) Actuator(a Actuator) ActuatorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actuators[a]
}

// RecordCycle stores the readings of a finished cycle.
func (s *State) RecordCycle(readings Cycle, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = readings
	s.lastCycle = at
	s.cycles++
}

// SetPhase records the supervisor phase.
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Actuators [NumActuators]ActuatorState
	Readings  Cycle
	LastCycle time.Time
	Cycles    uint64
	Phase     Phase
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Actuators: s.actuators,
		Readings:  s.readings,
		LastCycle: s.lastCycle,
		Cycles:    s.cycles,
		Phase:     s.phase,
	}
}
