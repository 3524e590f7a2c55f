// Package protocol defines the control message exchanged between the control
// node and the actuation node, and the codecs that put it on the wire.
package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a payload that cannot be dispatched. The whole message is dropped.
var ErrMalformed = errors.New("malformed control message")

// ServoKey addresses one physical servo: controller bus and channel on it.
type ServoKey struct {
	BusID   int `json:"i2c_id"`
	MotorID int `json:"motor_id"`
}

func (k ServoKey) String() string {
	return fmt.Sprintf("%d/%d", k.BusID, k.MotorID)
}

// ServoTarget is one decoded (bus_id, motor_id, angle) tuple.
type ServoTarget struct {
	ServoKey
	Angle float64 `json:"angle"`
}

// UnitCommand carries the servo angles computed for one pan-tilt unit.
// MotorIDs holds the pan channel first, then the tilt channel.
type UnitCommand struct {
	Unit     string  `json:"unit"`
	BusID    int     `json:"i2c_id"`
	MotorIDs [2]int  `json:"motors_id"`
	Pan      float64 `json:"pan"`
	Tilt     float64 `json:"tilt"`
}

// PanKey returns the servo driving the pan axis.
func (u UnitCommand) PanKey() ServoKey {
	return ServoKey{BusID: u.BusID, MotorID: u.MotorIDs[0]}
}

// TiltKey returns the servo driving the tilt axis.
func (u UnitCommand) TiltKey() ServoKey {
	return ServoKey{BusID: u.BusID, MotorID: u.MotorIDs[1]}
}

// ControlMessage is the batch published once per control cycle.
type ControlMessage struct {
	Units []UnitCommand `json:"units"`
}

// Validate rejects a message that addresses the same servo twice.
func (m ControlMessage) Validate() error {
	seen := make(map[ServoKey]string, len(m.Units)*2)
	for _, u := range m.Units {
		if u.Unit == "" {
			return fmt.Errorf("%w: entry without unit name", ErrMalformed)
		}
		for _, key := range []ServoKey{u.PanKey(), u.TiltKey()} {
			if owner, dup := seen[key]; dup {
				return fmt.Errorf("%w: servo %s addressed by both %s and %s", ErrMalformed, key, owner, u.Unit)
			}
			seen[key] = u.Unit
		}
	}
	return nil
}

// Targets flattens the message into per-servo tuples: pan then tilt for every
// unit, in message order.
func (m ControlMessage) Targets() []ServoTarget {
	targets := make([]ServoTarget, 0, len(m.Units)*2)
	for _, u := range m.Units {
		targets = append(targets,
			ServoTarget{ServoKey: u.PanKey(), Angle: u.Pan},
			ServoTarget{ServoKey: u.TiltKey(), Angle: u.Tilt},
		)
	}
	return targets
}
