// Package pantilt holds the calibrated pan-tilt units of the rig and turns a
// sensor-frame target into one servo command per unit.
package pantilt

import (
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// Unit is the static calibration of one pan-tilt rig.
type Unit struct {
	Name        string
	Position    geometry.Point3D
	Orientation geometry.Orientation
	AngleMin    float64
	AngleMax    float64
	BusID       int
	MotorIDs    [2]int
}

// unitFromConfig expects a record that already passed UnitConfig.Validate.
func unitFromConfig(uc config.UnitConfig, global config.AngleLimits) Unit {
	angleMin, angleMax := uc.Limits(global)
	return Unit{
		Name:        uc.Name,
		Position:    geometry.Point3D{X: uc.Position[0], Y: uc.Position[1], Z: uc.Position[2]},
		Orientation: geometry.Orientation{Roll: uc.Orientation[0], Pitch: uc.Orientation[1], Yaw: uc.Orientation[2]},
		AngleMin:    angleMin,
		AngleMax:    angleMax,
		BusID:       *uc.I2CID,
		MotorIDs:    [2]int{uc.MotorsID[0], uc.MotorsID[1]},
	}
}

// ComputeAngles points the unit at a world-frame target and returns the
// clamped, remapped servo angles.
func (u Unit) ComputeAngles(targetWorld geometry.Point3D) (panServo, tiltServo float64, err error) {
	local, err := geometry.WorldToLocal(targetWorld, u.Position, u.Orientation)
	if err != nil {
		return 0, 0, err
	}
	pan, tilt, err := geometry.PanTilt(local)
	if err != nil {
		return 0, 0, err
	}
	panServo = geometry.ToServo(pan, u.AngleMin, u.AngleMax)
	tiltServo = geometry.ToServo(tilt, u.AngleMin, u.AngleMax)
	if math.IsNaN(panServo) || math.IsNaN(tiltServo) {
		return 0, 0, fmt.Errorf("unit %s servo angles: %w", u.Name, geometry.ErrNumeric)
	}
	return panServo, tiltServo, nil
}

// Registry is the immutable set of units loaded at startup.
type Registry struct {
	units  []Unit
	logger log.Logger
}

// NewRegistry builds the registry from the rig file. Invalid unit records are
// logged and left out; the call only fails when no unit survives.
func NewRegistry(cfg *config.Config, logger log.Logger) (*Registry, error) {
	valid, errs := cfg.PartitionUnits()
	for _, err := range errs {
		logger.Errorf("Excluding pan-tilt unit: %v", err)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid pan-tilt units in config (%d rejected)", len(errs))
	}

	units := make([]Unit, 0, len(valid))
	for _, uc := range valid {
		u := unitFromConfig(uc, *cfg.AngleLimits)
		units = append(units, u)
		logger.Infof("Registered pan-tilt unit %s on i2c_id %d, motors %v, limits [%.1f, %.1f]",
			u.Name, u.BusID, u.MotorIDs, u.AngleMin, u.AngleMax)
	}
	return &Registry{units: units, logger: logger}, nil
}

// Units returns a copy of the registered units in config order.
func (r *Registry) Units() []Unit {
	out := make([]Unit, len(r.units))
	copy(out, r.units)
	return out
}

// ComputeAll converts the sensor-frame target to the world frame once and
// computes every unit's command. A unit that fails is skipped for this cycle.
// ok is false when no unit produced a command.
func (r *Registry) ComputeAll(targetSensor geometry.Point3D) (msg protocol.ControlMessage, ok bool) {
	targetWorld := geometry.SensorToWorld(targetSensor)

	for _, u := range r.units {
		pan, tilt, err := u.ComputeAngles(targetWorld)
		if err != nil {
			r.logger.WithField("unit", u.Name).Warnf("Skipping unit this cycle: %v", err)
			continue
		}
		r.logger.Debugf("Unit %s - Pan: %.2f°, Tilt: %.2f°", u.Name, pan, tilt)
		msg.Units = append(msg.Units, protocol.UnitCommand{
			Unit:     u.Name,
			BusID:    u.BusID,
			MotorIDs: u.MotorIDs,
			Pan:      pan,
			Tilt:     tilt,
		})
	}
	return msg, len(msg.Units) > 0
}

// Servos lists the (bus, motor) pairs of all units, pan first.
func (r *Registry) Servos() []protocol.ServoKey {
	keys := make([]protocol.ServoKey, 0, len(r.units)*2)
	for _, u := range r.units {
		keys = append(keys,
			protocol.ServoKey{BusID: u.BusID, MotorID: u.MotorIDs[0]},
			protocol.ServoKey{BusID: u.BusID, MotorID: u.MotorIDs[1]})
	}
	return keys
}

// unitView is the JSON form of a Unit. Non-finite calibration values become null.
type unitView struct {
	Name        string      `json:"name"`
	Position    [3]*float64 `json:"position"`
	Orientation [3]*float64 `json:"orientation"`
	AngleMin    float64     `json:"angle_min"`
	AngleMax    float64     `json:"angle_max"`
	BusID       int         `json:"i2c_id"`
	MotorIDs    [2]int      `json:"motors_id"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// UnitsHandler handles API requests for the registered units
func (r *Registry) UnitsHandler(c *fiber.Ctx) error {
	views := make([]unitView, len(r.units))
	for i, u := range r.units {
		views[i] = unitView{
			Name:        u.Name,
			Position:    [3]*float64{finite(u.Position.X), finite(u.Position.Y), finite(u.Position.Z)},
			Orientation: [3]*float64{finite(u.Orientation.Roll), finite(u.Orientation.Pitch), finite(u.Orientation.Yaw)},
			AngleMin:    u.AngleMin,
			AngleMax:    u.AngleMax,
			BusID:       u.BusID,
			MotorIDs:    u.MotorIDs,
		}
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"units":  views,
	})
}
