package motion

import (
	"context"
	"math"
	"time"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// ServoWriter is the hardware call used for every write. hardware.Driver satisfies it.
type ServoWriter interface {
	SetAngle(busID, motorID int, angle float64) error
}

// Result describes one Move call.
type Result struct {
	Targets   []protocol.ServoTarget `json:"targets"`
	Steps     int                    `json:"steps"`
	Preempted bool                   `json:"preempted"`
	Failed    []protocol.ServoKey    `json:"failed,omitempty"`
	Skipped   []protocol.ServoKey    `json:"skipped,omitempty"`
	Duration  time.Duration          `json:"duration"`
}

// SmoothDriver interpolates servos toward their targets in lockstep micro-steps.
type SmoothDriver struct {
	writer   ServoWriter
	state    *State
	stepSize float64
	delay    time.Duration
	logger   log.Logger

	// sleep waits between micro-steps and returns early when ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSmoothDriver builds a driver that writes through w and records angles in state.
func NewSmoothDriver(w ServoWriter, state *State, cfg config.MotionConfig, logger log.Logger) *SmoothDriver {
	stepSize := cfg.StepSizeDeg
	if stepSize <= 0 {
		stepSize = 1
	}
	return &SmoothDriver{
		writer:   w,
		state:    state,
		stepSize: stepSize,
		delay:    cfg.StepDelay(),
		logger:   logger,
		sleep:    sleepContext,
	}
}

// State returns the servo record the driver writes to.
func (d *SmoothDriver) State() *State {
	return d.state
}

type track struct {
	key    protocol.ServoKey
	start  float64
	target float64
	failed bool
}

// Move drives every addressed servo from its recorded angle to its target.
// All servos share the step count of the longest move. A servo whose write
// fails is left alone for the rest of the batch. When ctx is cancelled the
// move stops at the next micro-step boundary and returns ctx.Err(); the
// recorded angles then hold the last interpolated positions.
func (d *SmoothDriver) Move(ctx context.Context, targets []protocol.ServoTarget) (Result, error) {
	began := time.Now()
	res := Result{Targets: targets}

	tracks := d.plan(targets, &res)
	if len(tracks) == 0 {
		res.Duration = time.Since(began)
		return res, nil
	}

	steps := 1
	for _, tr := range tracks {
		if n := int(math.Round(math.Abs(tr.target-tr.start) / d.stepSize)); n > steps {
			steps = n
		}
	}

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return d.preempted(res, began), err
		}
		frac := float64(i) / float64(steps)
		for _, tr := range tracks {
			if tr.failed {
				continue
			}
			angle := geometry.ClampServo(tr.start + (tr.target-tr.start)*frac)
			d.write(tr, angle, &res)
		}
		res.Steps = i

		if err := d.sleep(ctx, d.delay); err != nil {
			return d.preempted(res, began), err
		}
	}

	// Land exactly on target regardless of accumulated rounding.
	for _, tr := range tracks {
		if !tr.failed {
			d.write(tr, tr.target, &res)
		}
	}

	res.Duration = time.Since(began)
	d.logger.Debugf("Moved %d servos in %d steps (%v)", len(tracks), res.Steps, res.Duration)
	return res, nil
}

func (d *SmoothDriver) plan(targets []protocol.ServoTarget, res *Result) []*track {
	index := make(map[protocol.ServoKey]int, len(targets))
	var tracks []*track
	for _, t := range targets {
		if !d.state.Configured(t.ServoKey) {
			d.logger.Warnf("Servo not found for i2c_id %d, motor_id %d; skipping target", t.BusID, t.MotorID)
			res.Skipped = append(res.Skipped, t.ServoKey)
			continue
		}
		if math.IsNaN(t.Angle) {
			d.logger.Warnf("Servo %s: target angle is NaN; skipping target", t.ServoKey)
			res.Skipped = append(res.Skipped, t.ServoKey)
			continue
		}
		tr := &track{
			key:    t.ServoKey,
			start:  d.state.Angle(t.ServoKey),
			target: geometry.ClampServo(t.Angle),
		}
		// A repeated servo keeps its first slot and the last angle.
		if i, dup := index[t.ServoKey]; dup {
			tracks[i] = tr
			continue
		}
		index[t.ServoKey] = len(tracks)
		tracks = append(tracks, tr)
	}
	return tracks
}

func (d *SmoothDriver) write(tr *track, angle float64, res *Result) {
	if err := d.writer.SetAngle(tr.key.BusID, tr.key.MotorID, angle); err != nil {
		d.logger.Errorf("Failed to set servo angle on i2c_id %d, motor_id %d: %v", tr.key.BusID, tr.key.MotorID, err)
		tr.failed = true
		res.Failed = append(res.Failed, tr.key)
		return
	}
	d.state.set(tr.key, angle)
}

func (d *SmoothDriver) preempted(res Result, began time.Time) Result {
	res.Preempted = true
	res.Duration = time.Since(began)
	d.logger.Debugf("Motion preempted after %d steps", res.Steps)
	return res
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
