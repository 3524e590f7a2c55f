package geometry

import "math"

// SelectClosest returns the candidate nearest to the sensor origin.
// Ties keep the first candidate seen. ok is false when nothing usable was given.
func SelectClosest(points []Point3D) (closest Point3D, ok bool) {
	minDistance := math.Inf(1)
	for _, p := range points {
		if d := p.Norm(); d < minDistance {
			minDistance = d
			closest = p
			ok = true
		}
	}
	return closest, ok
}
