package geometry

import "math"

// Actuator domain written to the servo hardware, in degrees.
const (
	ServoMin    = 0.0
	ServoMax    = 180.0
	ServoCenter = 90.0
)

// Clamp limits a to [lo, hi].
func Clamp(a, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, a))
}

// ToServo applies the unit's safety bounds to a signed angle and shifts it into
// the 0-180 actuator domain. The result is not clamped again: bounds outside
// [-90, 90] are a configuration error caught when the rig config is loaded.
func ToServo(raw, angleMin, angleMax float64) float64 {
	return Clamp(raw, angleMin, angleMax) + ServoCenter
}

// ClampServo forces an angle into the actuator domain right before a hardware write.
func ClampServo(angle float64) float64 {
	return Clamp(angle, ServoMin, ServoMax)
}
