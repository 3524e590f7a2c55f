// Package perception turns detector output (pixel centers plus depth) into
// 3D points in the depth sensor frame.
package perception

import (
	"fmt"

	"github.com/open-teleop/pantilt/pkg/geometry"
)

// Distortion models understood by Deproject.
const (
	ModelNone                = "none"
	ModelBrownConrady        = "brown_conrady"
	ModelInverseBrownConrady = "inverse_brown_conrady"
)

// undistortIterations is enough for the iterative Brown-Conrady inverse to
// converge on camera-grade distortion.
const undistortIterations = 10

// Intrinsics is the pinhole model of the depth stream, as reported by the camera.
type Intrinsics struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	PPX    float64    `json:"ppx"`
	PPY    float64    `json:"ppy"`
	FX     float64    `json:"fx"`
	FY     float64    `json:"fy"`
	Model  string     `json:"model"`
	Coeffs [5]float64 `json:"coeffs"`
}

// Validate rejects intrinsics that cannot deproject.
func (in Intrinsics) Validate() error {
	if in.FX == 0 || in.FY == 0 {
		return fmt.Errorf("intrinsics: focal length must be non-zero (fx=%v, fy=%v)", in.FX, in.FY)
	}
	switch in.Model {
	case "", ModelNone, ModelBrownConrady, ModelInverseBrownConrady:
		return nil
	default:
		return fmt.Errorf("intrinsics: unsupported distortion model '%s'", in.Model)
	}
}

// Deproject maps pixel (u, v) at the given depth in meters to a sensor-frame point.
func (in Intrinsics) Deproject(u, v, depth float64) geometry.Point3D {
	x := (u - in.PPX) / in.FX
	y := (v - in.PPY) / in.FY
	k := in.Coeffs

	switch in.Model {
	case ModelInverseBrownConrady:
		r2 := x*x + y*y
		f := 1 + k[0]*r2 + k[1]*r2*r2 + k[4]*r2*r2*r2
		ux := x*f + 2*k[2]*x*y + k[3]*(r2+2*x*x)
		uy := y*f + 2*k[3]*x*y + k[2]*(r2+2*y*y)
		x, y = ux, uy

	case ModelBrownConrady:
		xo, yo := x, y
		for i := 0; i < undistortIterations; i++ {
			r2 := x*x + y*y
			icdist := 1 / (1 + ((k[4]*r2+k[1])*r2+k[0])*r2)
			xq := x / icdist
			yq := y / icdist
			dx := 2*k[2]*xq*yq + k[3]*(r2+2*xq*xq)
			dy := 2*k[3]*xq*yq + k[2]*(r2+2*yq*yq)
			x = (xo - dx) * icdist
			y = (yo - dy) * icdist
		}
	}

	return geometry.Point3D{X: depth * x, Y: depth * y, Z: depth}
}
