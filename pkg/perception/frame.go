package perception

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/open-teleop/pantilt/pkg/geometry"
)

// ErrNoFrame means no usable frame was available this cycle. Callers skip
// the cycle and try again.
var ErrNoFrame = errors.New("no frame available")

// Detection is the pixel center of one detected object and the depth, in
// meters, sampled at that pixel.
type Detection struct {
	U     float64 `json:"u"`
	V     float64 `json:"v"`
	Depth float64 `json:"depth"`
}

// Frame is one detector result.
type Frame struct {
	Seq        uint64      `json:"seq"`
	Timestamp  time.Time   `json:"timestamp"`
	Intrinsics Intrinsics  `json:"intrinsics"`
	Detections []Detection `json:"detections"`
}

// Points deprojects every detection into the sensor frame. Detections
// without a usable depth reading are left out and counted in dropped.
func (f Frame) Points() (points []geometry.Point3D, dropped int) {
	for _, d := range f.Detections {
		if !(d.Depth > 0) || math.IsInf(d.Depth, 0) || math.IsNaN(d.U) || math.IsNaN(d.V) {
			dropped++
			continue
		}
		points = append(points, f.Intrinsics.Deproject(d.U, d.V, d.Depth))
	}
	return points, dropped
}

// Source yields detector frames one at a time.
type Source interface {
	// Next blocks until a frame is available. It returns an error wrapping
	// ErrNoFrame for a transient miss and io.EOF when the source is exhausted.
	Next(ctx context.Context) (Frame, error)
	Close() error
}
