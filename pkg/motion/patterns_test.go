package motion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

func TestAxesFollowMotorOrder(t *testing.T) {
	bus0, bus1 := 0, 1
	units := []config.UnitConfig{
		{Name: "a", I2CID: &bus0, MotorsID: []int{3, 2}},
		{Name: "b", I2CID: &bus1, MotorsID: []int{0, 1}},
	}
	pan, tilt := Axes(units)
	assert.Equal(t, []protocol.ServoKey{{BusID: 0, MotorID: 3}, {BusID: 1, MotorID: 0}}, pan)
	assert.Equal(t, []protocol.ServoKey{{BusID: 0, MotorID: 2}, {BusID: 1, MotorID: 1}}, tilt)
}

func TestCenterMovesEveryServoTo90(t *testing.T) {
	w := newRecordingWriter()
	d, _ := newTestDriver(w, 10, servoA, servoB)

	_, err := Center(context.Background(), d, []protocol.ServoKey{servoA, servoB})
	require.NoError(t, err)
	assert.Equal(t, 90.0, d.State().Angle(servoA))
	assert.Equal(t, 90.0, d.State().Angle(servoB))
}

func TestSweepEndsRightUp(t *testing.T) {
	w := newRecordingWriter()
	d, _ := newTestDriver(w, 5, servoA, servoB)

	err := Sweep(context.Background(), d, []protocol.ServoKey{servoA}, []protocol.ServoKey{servoB}, SweepParams{Amplitude: 15})
	require.NoError(t, err)

	assert.Equal(t, 105.0, d.State().Angle(servoA))
	assert.Equal(t, 75.0, d.State().Angle(servoB))
	assert.Contains(t, w.anglesFor(servoA), 75.0, "pan visits the left position")
	assert.Contains(t, w.anglesFor(servoB), 105.0, "tilt visits the down position")
}

func TestWaveAnglesPhaseOffset(t *testing.T) {
	p := WaveParams{Amplitude: 15, Frequency: 1, PhaseOffset: math.Pi / 2}
	targets := WaveAngles([]protocol.ServoKey{servoA, servoB}, p, 0)
	assert.InDelta(t, 90.0, targets[0].Angle, 1e-9)
	assert.InDelta(t, 105.0, targets[1].Angle, 1e-9)

	// A quarter period later the first servo peaks.
	targets = WaveAngles([]protocol.ServoKey{servoA}, p, 250*time.Millisecond)
	assert.InDelta(t, 105.0, targets[0].Angle, 1e-9)
}

func TestWaveRecentersAfterDuration(t *testing.T) {
	w := newRecordingWriter()
	d, _ := newTestDriver(w, 5, servoA, servoB)
	d.sleep = sleepContext

	p := WaveParams{Amplitude: 10, Frequency: 2, PhaseOffset: 0.5, Duration: 30 * time.Millisecond, Interval: 5 * time.Millisecond}
	require.NoError(t, Wave(context.Background(), d, []protocol.ServoKey{servoA, servoB}, p))

	assert.Equal(t, 90.0, d.State().Angle(servoA))
	assert.Equal(t, 90.0, d.State().Angle(servoB))
	assert.Greater(t, len(w.anglesFor(servoA)), 2)
}

func TestWaveStopsOnCancel(t *testing.T) {
	d, _ := newTestDriver(newRecordingWriter(), 5, servoA)
	d.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Wave(ctx, d, []protocol.ServoKey{servoA}, DefaultWaveParams)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInterruptedWaveRecenters(t *testing.T) {
	d, _ := newTestDriver(newRecordingWriter(), 5, servoA)
	d.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Interruptible(ctx, d, []protocol.ServoKey{servoA}, func(ctx context.Context) error {
		return Wave(ctx, d, []protocol.ServoKey{servoA}, DefaultWaveParams)
	})
	require.NoError(t, err)
	assert.Equal(t, 90.0, d.State().Angle(servoA))
}

func TestInterruptibleKeepsOtherErrors(t *testing.T) {
	d, _ := newTestDriver(newRecordingWriter(), 5, servoA)
	boom := errors.New("bus fault")

	err := Interruptible(context.Background(), d, []protocol.ServoKey{servoA}, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0.0, d.State().Angle(servoA))
}
