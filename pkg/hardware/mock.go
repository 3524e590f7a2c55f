package hardware

import (
	"fmt"
	"sync"

	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// MockDriver keeps servo angles in memory. It is the default driver for
// bench runs without a controller attached.
type MockDriver struct {
	mu     sync.Mutex
	bound  map[protocol.ServoKey]bool
	angles map[protocol.ServoKey]float64
	faults map[protocol.ServoKey]error
	writes int
	closed bool
	logger log.Logger
}

func newMockDriver(bound map[protocol.ServoKey]bool, logger log.Logger) *MockDriver {
	return &MockDriver{
		bound:  bound,
		angles: make(map[protocol.ServoKey]float64),
		faults: make(map[protocol.ServoKey]error),
		logger: logger,
	}
}

// NewMockDriver binds the given servos to an in-memory driver.
func NewMockDriver(servos []protocol.ServoKey, logger log.Logger) *MockDriver {
	bound := make(map[protocol.ServoKey]bool, len(servos))
	for _, key := range servos {
		bound[key] = true
	}
	return newMockDriver(bound, logger)
}

// SetAngle records the clamped angle.
func (d *MockDriver) SetAngle(busID, motorID int, angle float64) error {
	key := protocol.ServoKey{BusID: busID, MotorID: motorID}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("mock driver closed")
	}
	if !d.bound[key] {
		return fmt.Errorf("servo %s: %w", key, ErrUnknownServo)
	}
	if err := d.faults[key]; err != nil {
		return fmt.Errorf("servo %s: %w", key, err)
	}

	angle = geometry.ClampServo(angle)
	d.angles[key] = angle
	d.writes++
	d.logger.Debugf("Set servo angle to %.2f on i2c_id %d, motor_id %d", angle, busID, motorID)
	return nil
}

// SetFault makes every later write to the servo fail with err. A nil err clears it.
func (d *MockDriver) SetFault(busID, motorID int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := protocol.ServoKey{BusID: busID, MotorID: motorID}
	if err == nil {
		delete(d.faults, key)
		return
	}
	d.faults[key] = err
}

// Angle returns the last angle written to a servo.
func (d *MockDriver) Angle(busID, motorID int) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.angles[protocol.ServoKey{BusID: busID, MotorID: motorID}]
	return a, ok
}

// Writes returns the number of successful writes.
func (d *MockDriver) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *MockDriver) Servos() []protocol.ServoKey {
	return sortedKeys(d.bound)
}

func (d *MockDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.logger.Infof("Mock servo driver closed after %d writes", d.writes)
	return nil
}
