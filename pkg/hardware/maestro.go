package hardware

import (
	"fmt"
	"io"
	"math"
	"sync"

	"go.bug.st/serial"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// Pololu protocol framing. Every command starts with the baud detection byte
// followed by the device number; the command byte then loses its top bit.
const (
	pololuStart     = 0xAA
	cmdSetTarget    = 0x84
	quarterMicrosec = 4
)

// Port is the part of serial.Port the Maestro driver needs.
type Port interface {
	io.Writer
	Close() error
}

// MaestroDriver writes servo targets to one or more daisy-chained Pololu
// Maestro controllers. The i2c_id of a unit selects the controller device
// number and motor_id selects the channel.
type MaestroDriver struct {
	mu         sync.Mutex
	port       Port
	bound      map[protocol.ServoKey]bool
	minPulseUs int
	maxPulseUs int
	logger     log.Logger
}

// OpenMaestro opens the configured serial port and binds the servos to it.
func OpenMaestro(hw config.HardwareConfig, bound map[protocol.ServoKey]bool, logger log.Logger) (*MaestroDriver, error) {
	mode := &serial.Mode{
		BaudRate: hw.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(hw.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open servo controller on %s: %w", hw.SerialPort, err)
	}
	logger.Infof("Opened Maestro servo controller on %s at %d baud", hw.SerialPort, hw.BaudRate)

	return NewMaestroDriver(port, hw, bound, logger), nil
}

// NewMaestroDriver wraps an already open port.
func NewMaestroDriver(port Port, hw config.HardwareConfig, bound map[protocol.ServoKey]bool, logger log.Logger) *MaestroDriver {
	for key := range bound {
		logger.Infof("Initialized servo on i2c_id %d, motor_id %d", key.BusID, key.MotorID)
	}
	return &MaestroDriver{
		port:       port,
		bound:      bound,
		minPulseUs: hw.MinPulseUs,
		maxPulseUs: hw.MaxPulseUs,
		logger:     logger,
	}
}

// PulseTarget maps a servo angle onto the controller's quarter-microsecond target.
func (d *MaestroDriver) PulseTarget(angle float64) uint16 {
	angle = geometry.ClampServo(angle)
	pulse := float64(d.minPulseUs) + angle/geometry.ServoMax*float64(d.maxPulseUs-d.minPulseUs)
	return uint16(math.Round(pulse * quarterMicrosec))
}

func (d *MaestroDriver) SetAngle(busID, motorID int, angle float64) error {
	key := protocol.ServoKey{BusID: busID, MotorID: motorID}
	if !d.bound[key] {
		return fmt.Errorf("servo %s: %w", key, ErrUnknownServo)
	}
	if err := d.setTarget(key, d.PulseTarget(angle)); err != nil {
		return err
	}
	d.logger.Debugf("Set servo angle to %.2f on i2c_id %d, motor_id %d", angle, busID, motorID)
	return nil
}

func (d *MaestroDriver) setTarget(key protocol.ServoKey, target uint16) error {
	frame := []byte{
		pololuStart,
		byte(key.BusID),
		cmdSetTarget & 0x7F,
		byte(key.MotorID),
		byte(target & 0x7F),
		byte((target >> 7) & 0x7F),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return fmt.Errorf("servo %s: controller port closed", key)
	}
	n, err := d.port.Write(frame)
	if err != nil {
		return fmt.Errorf("servo %s: write failed: %w", key, err)
	}
	if n != len(frame) {
		return fmt.Errorf("servo %s: short write (%d of %d bytes)", key, n, len(frame))
	}
	return nil
}

func (d *MaestroDriver) Servos() []protocol.ServoKey {
	return sortedKeys(d.bound)
}

// Close stops the pulse train on every bound channel, then releases the port.
func (d *MaestroDriver) Close() error {
	for _, key := range d.Servos() {
		if err := d.setTarget(key, 0); err != nil {
			d.logger.Warnf("Failed to release servo %s: %v", key, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	d.logger.Infof("Servo controllers safely deinitialized.")
	return err
}
