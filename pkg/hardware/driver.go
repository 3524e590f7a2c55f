// Package hardware is the servo write boundary of the actuation node.
package hardware

import (
	"errors"
	"fmt"
	"sort"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// ErrUnknownServo is returned for a (bus, motor) pair that was not bound at startup.
var ErrUnknownServo = errors.New("servo not configured")

// maxBusID is the highest device number a Pololu protocol controller accepts.
const maxBusID = 127

// Driver performs synchronous servo writes. Angles are in the 0-180 servo domain.
type Driver interface {
	SetAngle(busID, motorID int, angle float64) error
	Servos() []protocol.ServoKey
	Close() error
}

// ServoKeys lists every (i2c_id, motor_id) pair used by the given units.
func ServoKeys(units []config.UnitConfig) []protocol.ServoKey {
	var keys []protocol.ServoKey
	for _, u := range units {
		if u.I2CID == nil {
			continue
		}
		for _, motor := range u.MotorsID {
			keys = append(keys, protocol.ServoKey{BusID: *u.I2CID, MotorID: motor})
		}
	}
	return keys
}

// NewDriver validates every servo address against the hardware settings and
// only then opens the selected driver. Any bad address fails the whole call.
func NewDriver(hw config.HardwareConfig, servos []protocol.ServoKey, logger log.Logger) (Driver, error) {
	bound, err := bindServos(hw, servos)
	if err != nil {
		return nil, err
	}

	switch hw.Driver {
	case config.DriverMock, "":
		return newMockDriver(bound, logger), nil
	case config.DriverMaestro:
		maestro, err := OpenMaestro(hw, bound, logger)
		if err != nil {
			return nil, err
		}
		return maestro, nil
	default:
		return nil, fmt.Errorf("unknown hardware driver '%s'", hw.Driver)
	}
}

func bindServos(hw config.HardwareConfig, servos []protocol.ServoKey) (map[protocol.ServoKey]bool, error) {
	if len(servos) == 0 {
		return nil, fmt.Errorf("no servos to bind")
	}
	bound := make(map[protocol.ServoKey]bool, len(servos))
	for _, key := range servos {
		if key.BusID < 0 || key.BusID > maxBusID {
			return nil, fmt.Errorf("servo %s: bus id out of range [0, %d]", key, maxBusID)
		}
		if key.MotorID < 0 || (hw.Channels > 0 && key.MotorID >= hw.Channels) {
			return nil, fmt.Errorf("servo %s: motor id out of range [0, %d)", key, hw.Channels)
		}
		bound[key] = true
	}
	return bound, nil
}

func sortedKeys(bound map[protocol.ServoKey]bool) []protocol.ServoKey {
	keys := make([]protocol.ServoKey, 0, len(bound))
	for k := range bound {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].BusID != keys[j].BusID {
			return keys[i].BusID < keys[j].BusID
		}
		return keys[i].MotorID < keys[j].MotorID
	})
	return keys
}
