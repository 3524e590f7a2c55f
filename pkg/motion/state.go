// Package motion moves servos smoothly from their recorded angle to new
// targets and owns the record of where every servo currently is.
package motion

import (
	"sort"
	"sync"

	"github.com/open-teleop/pantilt/pkg/protocol"
)

// State is the runtime record of the last angle written to each configured
// servo. It is built once from configuration; every servo starts at 0.
// Only the SmoothDriver writes to it. Readers may take snapshots at any time.
type State struct {
	mu     sync.RWMutex
	angles map[protocol.ServoKey]float64
}

// NewState records the given servos at angle 0.
func NewState(servos []protocol.ServoKey) *State {
	angles := make(map[protocol.ServoKey]float64, len(servos))
	for _, key := range servos {
		angles[key] = 0
	}
	return &State{angles: angles}
}

// Configured reports whether the servo was part of the startup configuration.
func (s *State) Configured(key protocol.ServoKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.angles[key]
	return ok
}

// Angle returns the recorded angle, 0 for a servo never written.
func (s *State) Angle(key protocol.ServoKey) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.angles[key]
}

func (s *State) set(key protocol.ServoKey, angle float64) {
	s.mu.Lock()
	s.angles[key] = angle
	s.mu.Unlock()
}

// ServoAngle is one entry of a State snapshot.
type ServoAngle struct {
	protocol.ServoKey
	Angle float64 `json:"angle"`
}

// Snapshot returns every servo angle ordered by bus then motor.
func (s *State) Snapshot() []ServoAngle {
	s.mu.RLock()
	out := make([]ServoAngle, 0, len(s.angles))
	for key, angle := range s.angles {
		out = append(out, ServoAngle{ServoKey: key, Angle: angle})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BusID != out[j].BusID {
			return out[i].BusID < out[j].BusID
		}
		return out[i].MotorID < out[j].MotorID
	})
	return out
}

// Servos lists the configured servos in snapshot order.
func (s *State) Servos() []protocol.ServoKey {
	snap := s.Snapshot()
	keys := make([]protocol.ServoKey, len(snap))
	for i, sa := range snap {
		keys[i] = sa.ServoKey
	}
	return keys
}
