package utils

import (
	"math"
)

// TwoPi is one full turn in radians.
const TwoPi = 2 * math.Pi

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// WrapToPi maps an angle into [-pi, pi). Only used at the boundary with orientation
// representations; headings inside the guidance core stay unbounded.
func WrapToPi(rad float64) float64 {
	wrapped := math.Mod(rad+math.Pi, TwoPi)
	if wrapped < 0 {
		wrapped += TwoPi
	}
	return wrapped - math.Pi
}

// Clamp keeps value inside [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
