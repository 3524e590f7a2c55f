package perception

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/zeromq"
)

var d435 = Intrinsics{Width: 640, Height: 480, PPX: 320, PPY: 240, FX: 600, FY: 600, Model: ModelNone}

func TestDeprojectPinhole(t *testing.T) {
	p := d435.Deproject(920, 240, 2)
	assert.InDelta(t, 2.0, p.X, 1e-12)
	assert.InDelta(t, 0.0, p.Y, 1e-12)
	assert.InDelta(t, 2.0, p.Z, 1e-12)

	center := d435.Deproject(320, 240, 1.5)
	assert.Equal(t, geometry.Point3D{Z: 1.5}, center)
}

func TestDeprojectZeroCoefficientsMatchPinhole(t *testing.T) {
	for _, model := range []string{ModelBrownConrady, ModelInverseBrownConrady} {
		in := d435
		in.Model = model
		got := in.Deproject(100, 50, 3)
		want := d435.Deproject(100, 50, 3)
		assert.InDelta(t, want.X, got.X, 1e-12, model)
		assert.InDelta(t, want.Y, got.Y, 1e-12, model)
	}
}

func TestDeprojectBrownConradyUndistorts(t *testing.T) {
	in := d435
	in.Model = ModelBrownConrady
	in.Coeffs = [5]float64{0.1, 0.01, 0, 0, 0}

	// Distort a known normalized point forward, then deproject it back.
	x0, y0 := 0.2, 0.1
	r2 := x0*x0 + y0*y0
	f := 1 + in.Coeffs[0]*r2 + in.Coeffs[1]*r2*r2
	u := x0*f*in.FX + in.PPX
	v := y0*f*in.FY + in.PPY

	p := in.Deproject(u, v, 1)
	assert.InDelta(t, x0, p.X, 1e-6)
	assert.InDelta(t, y0, p.Y, 1e-6)
}

func TestIntrinsicsValidate(t *testing.T) {
	assert.NoError(t, d435.Validate())
	assert.Error(t, Intrinsics{FX: 0, FY: 1}.Validate())

	bad := d435
	bad.Model = "kannala_brandt4"
	assert.Error(t, bad.Validate())
}

func TestFramePointsDropsBadDepth(t *testing.T) {
	frame := Frame{Intrinsics: d435, Detections: []Detection{
		{U: 320, V: 240, Depth: 1},
		{U: 100, V: 100, Depth: 0},
		{U: 100, V: 100, Depth: -1},
		{U: 100, V: 100, Depth: math.NaN()},
		{U: 100, V: 100, Depth: math.Inf(1)},
		{U: 920, V: 240, Depth: 2},
	}}

	points, dropped := frame.Points()
	assert.Equal(t, 4, dropped)
	require.Len(t, points, 2)
	assert.Equal(t, geometry.Point3D{Z: 1}, points[0])
}

const replayLines = `{"seq":1,"intrinsics":{"ppx":320,"ppy":240,"fx":600,"fy":600,"model":"none"},"detections":[{"u":320,"v":240,"depth":1.2}]}

{"seq":2,"intrinsics":{"ppx":320,"ppy":240,"fx":600,"fy":600},"detections":[]}
not json
{"seq":4,"intrinsics":{"ppx":320,"ppy":240,"fx":0,"fy":600},"detections":[]}
`

func TestReplaySource(t *testing.T) {
	src := NewReplaySource(strings.NewReader(replayLines), 0)
	defer src.Close()
	ctx := context.Background()

	frame, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Seq)
	require.Len(t, frame.Detections, 1)
	assert.Equal(t, 1.2, frame.Detections[0].Depth)

	frame, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), frame.Seq)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplaySourceHonoursContext(t *testing.T) {
	src := NewReplaySource(strings.NewReader(replayLines), time.Hour)
	_, err := src.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeSubscription hands the handler to the test instead of a socket.
type fakeSubscription struct {
	handler zeromq.MessageHandler
	stopped bool
	failure error
}

func (f *fakeSubscription) Start(handler zeromq.MessageHandler) error {
	f.handler = handler
	return f.failure
}

func (f *fakeSubscription) Stop() { f.stopped = true }

func TestZMQSourceKeepsNewestFrame(t *testing.T) {
	sub := &fakeSubscription{}
	src, err := NewZMQSource(sub, 50*time.Millisecond, log.NewNopLogger())
	require.NoError(t, err)

	sub.handler("perception/detections", []byte(`{"seq":1,"intrinsics":{"fx":1,"fy":1},"detections":[]}`))
	sub.handler("perception/detections", []byte(`{"seq":2,"intrinsics":{"fx":1,"fy":1},"detections":[]}`))
	sub.handler("perception/detections", []byte(`garbage`))
	sub.handler("perception/detections", []byte(`{"seq":3,"intrinsics":{"fx":0,"fy":1}}`))

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), frame.Seq)

	replaced, invalid := src.Stats()
	assert.Equal(t, int64(1), replaced)
	assert.Equal(t, int64(2), invalid)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, src.Close())
	assert.True(t, sub.stopped)
}

func TestZMQSourceStartFailure(t *testing.T) {
	_, err := NewZMQSource(&fakeSubscription{failure: errors.New("closed")}, time.Second, log.NewNopLogger())
	assert.Error(t, err)
}
