// Package hardware abstracts the single PWM-capable LED and the two
// angular servos (pan, tilt) a doorway module drives: a minimal
// capability with a real GPIO-backed implementation and a recording mock
// used on non-target hosts and in tests.
package hardware

// Hardware orients the beam, sets its brightness, and releases resources
// on shutdown. Callers pass configured values as they are; every
// implementation clamps orientations to its AngleRange and brightness to
// [0,1] before driving the outputs.
type Hardware interface {
	SetOrientation(pan, tilt float64)
	SetBrightness(value float64)
	Shutdown()
}

// AngleRange bounds the pan/tilt servos; mirrors SpotlightConfig's
// ServoMinAngle/ServoMaxAngle.
type AngleRange struct {
	Min, Max float64
}

// Clamp restricts angle to the range.
func (r AngleRange) Clamp(angle float64) float64 {
	if angle < r.Min {
		return r.Min
	}
	if angle > r.Max {
		return r.Max
	}
	return angle
}

// ClampBrightness restricts value to [0,1].
func ClampBrightness(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
