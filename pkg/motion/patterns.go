package motion

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// Axes splits the servos of the given units into pan (motors_id[0]) and
// tilt (motors_id[1]) groups.
func Axes(units []config.UnitConfig) (pan, tilt []protocol.ServoKey) {
	for _, u := range units {
		if u.I2CID == nil || len(u.MotorsID) != 2 {
			continue
		}
		pan = append(pan, protocol.ServoKey{BusID: *u.I2CID, MotorID: u.MotorsID[0]})
		tilt = append(tilt, protocol.ServoKey{BusID: *u.I2CID, MotorID: u.MotorsID[1]})
	}
	return pan, tilt
}

func uniform(keys []protocol.ServoKey, angle float64) []protocol.ServoTarget {
	targets := make([]protocol.ServoTarget, len(keys))
	for i, key := range keys {
		targets[i] = protocol.ServoTarget{ServoKey: key, Angle: angle}
	}
	return targets
}

// Center moves every servo to the middle of its travel.
func Center(ctx context.Context, d *SmoothDriver, servos []protocol.ServoKey) (Result, error) {
	return d.Move(ctx, uniform(servos, geometry.ServoCenter))
}

// RecenterTimeout bounds the re-centering move after an interrupted pattern.
const RecenterTimeout = 5 * time.Second

// Interruptible runs pattern under ctx. When ctx is cancelled mid-pattern the
// servos are re-centered on a fresh context and the interruption is not
// reported as an error.
func Interruptible(ctx context.Context, d *SmoothDriver, servos []protocol.ServoKey, pattern func(ctx context.Context) error) error {
	err := pattern(ctx)
	if err == nil || !errors.Is(err, context.Canceled) {
		return err
	}

	d.logger.Infof("Pattern interrupted, re-centering %d servos", len(servos))
	recenterCtx, cancel := context.WithTimeout(context.Background(), RecenterTimeout)
	defer cancel()
	_, err = Center(recenterCtx, d, servos)
	return err
}

// WaveParams shape a sinusoidal wave across a group of servos.
type WaveParams struct {
	Amplitude   float64       // degrees around center
	Frequency   float64       // Hz
	PhaseOffset float64       // radians between neighbouring servos
	Duration    time.Duration // total wave time
	Interval    time.Duration // time between two batches
}

// DefaultWaveParams mirror the bench calibration routine.
var DefaultWaveParams = WaveParams{
	Amplitude:   15,
	Frequency:   0.4,
	PhaseOffset: math.Pi / 4,
	Duration:    10 * time.Second,
	Interval:    50 * time.Millisecond,
}

// WaveAngles returns the wave position of every servo at time t.
func WaveAngles(servos []protocol.ServoKey, p WaveParams, t time.Duration) []protocol.ServoTarget {
	targets := make([]protocol.ServoTarget, len(servos))
	for i, key := range servos {
		phase := p.PhaseOffset * float64(i)
		angle := geometry.ServoCenter + p.Amplitude*math.Sin(2*math.Pi*p.Frequency*t.Seconds()+phase)
		targets[i] = protocol.ServoTarget{ServoKey: key, Angle: geometry.ClampServo(angle)}
	}
	return targets
}

// Wave issues wave batches for p.Duration, then re-centers the group.
func Wave(ctx context.Context, d *SmoothDriver, servos []protocol.ServoKey, p WaveParams) error {
	start := time.Now()
	for elapsed := time.Duration(0); elapsed < p.Duration; elapsed = time.Since(start) {
		if _, err := d.Move(ctx, WaveAngles(servos, p, elapsed)); err != nil {
			return err
		}
		if err := d.sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
	_, err := Center(ctx, d, servos)
	return err
}

// SweepParams drive the left-down / right-up sweep.
type SweepParams struct {
	Amplitude float64
	Duration  time.Duration
}

// DefaultSweepParams mirror the bench calibration routine.
var DefaultSweepParams = SweepParams{Amplitude: 15, Duration: 5 * time.Second}

// Sweep moves all pan and tilt servos together between left-down and
// right-up until p.Duration has passed. At least one full cycle runs.
func Sweep(ctx context.Context, d *SmoothDriver, pan, tilt []protocol.ServoKey, p SweepParams) error {
	leftDown := append(uniform(pan, geometry.ServoCenter-p.Amplitude), uniform(tilt, geometry.ServoCenter+p.Amplitude)...)
	rightUp := append(uniform(pan, geometry.ServoCenter+p.Amplitude), uniform(tilt, geometry.ServoCenter-p.Amplitude)...)

	start := time.Now()
	for {
		if _, err := d.Move(ctx, leftDown); err != nil {
			return err
		}
		if _, err := d.Move(ctx, rightUp); err != nil {
			return err
		}
		if time.Since(start) >= p.Duration {
			return nil
		}
	}
}
