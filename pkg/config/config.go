package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidUnit marks a pan-tilt unit record that cannot be used.
var ErrInvalidUnit = errors.New("invalid pan-tilt unit")

// Hardware driver names accepted in the rig file.
const (
	DriverMock    = "mock"
	DriverMaestro = "maestro"
)

// Config is the rig calibration shared by the control and actuation nodes.
type Config struct {
	AngleLimits *AngleLimits   `yaml:"angle_limits" json:"angle_limits"`
	Units       []UnitConfig   `yaml:"pan_tilt_units" json:"pan_tilt_units"`
	Motion      MotionConfig   `yaml:"motion" json:"motion"`
	Hardware    HardwareConfig `yaml:"hardware" json:"hardware"`
}

// AngleLimits are the signed safety bounds, in degrees, before the servo remap.
type AngleLimits struct {
	MinAngle float64 `yaml:"min_angle" json:"min_angle"`
	MaxAngle float64 `yaml:"max_angle" json:"max_angle"`
}

// UnitConfig is one pan-tilt rig as written in the rig file.
// Position is in meters, orientation is roll, pitch, yaw in degrees.
type UnitConfig struct {
	Name        string    `yaml:"name" json:"name"`
	Position    []float64 `yaml:"position" json:"position"`
	Orientation []float64 `yaml:"orientation" json:"orientation"`
	I2CID       *int      `yaml:"i2c_id" json:"i2c_id"`
	MotorsID    []int     `yaml:"motors_id" json:"motors_id"`
	AngleMin    *float64  `yaml:"angle_min,omitempty" json:"angle_min,omitempty"`
	AngleMax    *float64  `yaml:"angle_max,omitempty" json:"angle_max,omitempty"`
}

// MotionConfig tunes the smooth motion driver on the actuation node.
type MotionConfig struct {
	StepSizeDeg float64 `yaml:"step_size_deg" json:"step_size_deg"`
	StepDelayMs int     `yaml:"step_delay_ms" json:"step_delay_ms"`
}

// StepDelay returns the pause between two interpolation micro-steps.
func (m MotionConfig) StepDelay() time.Duration {
	return time.Duration(m.StepDelayMs) * time.Millisecond
}

// HardwareConfig selects and parameterises the servo controller driver.
type HardwareConfig struct {
	Driver     string `yaml:"driver" json:"driver"`
	SerialPort string `yaml:"serial_port,omitempty" json:"serial_port,omitempty"`
	BaudRate   int    `yaml:"baud_rate" json:"baud_rate"`
	MinPulseUs int    `yaml:"min_pulse_us" json:"min_pulse_us"`
	MaxPulseUs int    `yaml:"max_pulse_us" json:"max_pulse_us"`
	Channels   int    `yaml:"channels" json:"channels"`
}

// LoadConfig loads the rig file and applies defaults. Unit records are not
// validated here; use PartitionUnits so one bad unit does not reject the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses rig YAML with the same rules and defaults as LoadConfig.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if config.AngleLimits == nil {
		return nil, fmt.Errorf("missing required field in rig config: angle_limits")
	}
	if config.AngleLimits.MinAngle > config.AngleLimits.MaxAngle {
		return nil, fmt.Errorf("angle_limits.min_angle (%.1f) must not exceed max_angle (%.1f)",
			config.AngleLimits.MinAngle, config.AngleLimits.MaxAngle)
	}
	if len(config.Units) == 0 {
		return nil, fmt.Errorf("missing required field in rig config: pan_tilt_units")
	}

	if config.Motion.StepSizeDeg <= 0 {
		config.Motion.StepSizeDeg = 1
	}
	if config.Motion.StepDelayMs <= 0 {
		config.Motion.StepDelayMs = 50
	}

	hw := &config.Hardware
	if hw.Driver == "" {
		hw.Driver = DriverMock
	}
	switch hw.Driver {
	case DriverMock:
	case DriverMaestro:
		if hw.SerialPort == "" {
			return nil, fmt.Errorf("missing required field in rig config: hardware.serial_port")
		}
	default:
		return nil, fmt.Errorf("unknown hardware.driver '%s'", hw.Driver)
	}
	if hw.BaudRate <= 0 {
		hw.BaudRate = 9600
	}
	if hw.MinPulseUs <= 0 {
		hw.MinPulseUs = 500
	}
	if hw.MaxPulseUs <= 0 {
		hw.MaxPulseUs = 2500
	}
	if hw.MinPulseUs >= hw.MaxPulseUs {
		return nil, fmt.Errorf("hardware.min_pulse_us (%d) must be below max_pulse_us (%d)", hw.MinPulseUs, hw.MaxPulseUs)
	}
	if hw.Channels <= 0 {
		hw.Channels = 24
	}

	return &config, nil
}

// Limits returns the unit's effective safety bounds, falling back to the global ones.
func (u UnitConfig) Limits(global AngleLimits) (angleMin, angleMax float64) {
	angleMin, angleMax = global.MinAngle, global.MaxAngle
	if u.AngleMin != nil {
		angleMin = *u.AngleMin
	}
	if u.AngleMax != nil {
		angleMax = *u.AngleMax
	}
	return angleMin, angleMax
}

// Validate checks the structure of a single unit record.
func (u UnitConfig) Validate(global AngleLimits) error {
	if u.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidUnit)
	}
	if len(u.Position) != 3 {
		return fmt.Errorf("%w %s: position needs 3 values, got %d", ErrInvalidUnit, u.Name, len(u.Position))
	}
	if len(u.Orientation) != 3 {
		return fmt.Errorf("%w %s: orientation needs 3 values, got %d", ErrInvalidUnit, u.Name, len(u.Orientation))
	}
	if u.I2CID == nil {
		return fmt.Errorf("%w %s: missing i2c_id", ErrInvalidUnit, u.Name)
	}
	if *u.I2CID < 0 {
		return fmt.Errorf("%w %s: i2c_id must be >= 0, got %d", ErrInvalidUnit, u.Name, *u.I2CID)
	}
	if len(u.MotorsID) != 2 {
		return fmt.Errorf("%w %s: motors_id needs [pan, tilt], got %d values", ErrInvalidUnit, u.Name, len(u.MotorsID))
	}
	if u.MotorsID[0] < 0 || u.MotorsID[1] < 0 {
		return fmt.Errorf("%w %s: motor ids must be >= 0, got %v", ErrInvalidUnit, u.Name, u.MotorsID)
	}
	if u.MotorsID[0] == u.MotorsID[1] {
		return fmt.Errorf("%w %s: pan and tilt share motor id %d", ErrInvalidUnit, u.Name, u.MotorsID[0])
	}

	angleMin, angleMax := u.Limits(global)
	if angleMin > angleMax {
		return fmt.Errorf("%w %s: angle_min %.1f exceeds angle_max %.1f", ErrInvalidUnit, u.Name, angleMin, angleMax)
	}
	// Keeps angle+90 inside the 0-180 servo domain.
	if angleMin < -90 || angleMax > 90 {
		return fmt.Errorf("%w %s: angle bounds [%.1f, %.1f] leave the [-90, 90] servo range",
			ErrInvalidUnit, u.Name, angleMin, angleMax)
	}
	return nil
}

// PartitionUnits validates every unit record and returns the usable ones in
// file order, plus one error per excluded record. A unit is also excluded when
// its name or one of its (i2c_id, motor_id) pairs was already claimed.
func (c *Config) PartitionUnits() (valid []UnitConfig, errs []error) {
	names := make(map[string]bool)
	servos := make(map[[2]int]string)

	for _, u := range c.Units {
		if err := u.Validate(*c.AngleLimits); err != nil {
			errs = append(errs, err)
			continue
		}
		if names[u.Name] {
			errs = append(errs, fmt.Errorf("%w %s: duplicate name", ErrInvalidUnit, u.Name))
			continue
		}

		var clash error
		for _, motor := range u.MotorsID {
			key := [2]int{*u.I2CID, motor}
			if owner, taken := servos[key]; taken {
				clash = fmt.Errorf("%w %s: i2c_id %d motor %d already used by %s",
					ErrInvalidUnit, u.Name, key[0], key[1], owner)
				break
			}
		}
		if clash != nil {
			errs = append(errs, clash)
			continue
		}

		names[u.Name] = true
		for _, motor := range u.MotorsID {
			servos[[2]int{*u.I2CID, motor}] = u.Name
		}
		valid = append(valid, u)
	}
	return valid, errs
}
