// Package geometry holds the pure math of the tracker: the sensor -> world ->
// unit-local frame chain, pan/tilt extraction, the safety clamp with its
// servo remap, and nearest-target selection. Nothing here keeps state.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Point3D is a position in meters. Which frame it lives in is up to the caller.
type Point3D = r3.Vector

// Orientation holds world-frame Euler angles in degrees.
type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// ErrNumeric is returned when a transform input or result is not a finite number.
var ErrNumeric = errors.New("non-finite value in frame transform")

// SensorToWorld flips the depth sensor's x and y axes into the world frame.
func SensorToWorld(p Point3D) Point3D {
	return Point3D{X: -p.X, Y: -p.Y, Z: p.Z}
}

// RotationMatrix builds R = Rz(yaw) * Ry(pitch) * Rx(roll).
func RotationMatrix(o Orientation) *mat.Dense {
	roll, pitch, yaw := Radians(o.Roll), Radians(o.Pitch), Radians(o.Yaw)
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var r mat.Dense
	r.Product(rz, ry, rx)
	return &r
}

// WorldToLocal expresses a world-frame target relative to a unit mounted at
// position with the given orientation: R^T * (target - position).
func WorldToLocal(target, position Point3D, o Orientation) (Point3D, error) {
	if !isFinite(target) {
		return Point3D{}, fmt.Errorf("target %v: %w", target, ErrNumeric)
	}
	if !isFinite(position) {
		return Point3D{}, fmt.Errorf("unit position %v: %w", position, ErrNumeric)
	}
	if !isFinite(Point3D{X: o.Roll, Y: o.Pitch, Z: o.Yaw}) {
		return Point3D{}, fmt.Errorf("unit orientation %+v: %w", o, ErrNumeric)
	}

	offset := target.Sub(position)
	rel := mat.NewVecDense(3, []float64{offset.X, offset.Y, offset.Z})

	var local mat.VecDense
	local.MulVec(RotationMatrix(o).T(), rel)

	return Point3D{X: local.AtVec(0), Y: local.AtVec(1), Z: local.AtVec(2)}, nil
}

// PanTilt extracts azimuth and elevation in degrees from a unit-local offset.
// Pan is zero straight ahead along +z and lies in (-180, 180]; tilt lies in [-90, 90].
func PanTilt(local Point3D) (pan, tilt float64, err error) {
	pan = Degrees(math.Atan2(local.X, local.Z))
	if pan == -180 {
		pan = 180
	}
	tilt = Degrees(math.Atan2(local.Y, math.Hypot(local.X, local.Z)))

	if math.IsNaN(pan) || math.IsNaN(tilt) {
		return 0, 0, fmt.Errorf("pan/tilt for %v: %w", local, ErrNumeric)
	}
	return pan, tilt, nil
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func isFinite(p Point3D) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
