package guidance

import (
	"math"

	"github.com/auvlab/losguidance/utils"
)

// UnwrapReference moves reference by one full turn toward measured when the two are more
// than pi apart, so the filter input stays continuous with the vehicle's heading. Once
// |measured - reference| <= pi it returns reference unchanged.
func UnwrapReference(measured, reference float64) float64 {
	unwrapped, _ := CorrectOutput(measured, reference)
	return unwrapped
}

// CorrectOutput checks a filter output heading against the measured heading. When they are
// more than pi apart it returns the output shifted one turn toward measured and true.
func CorrectOutput(measured, output float64) (float64, bool) {
	e := measured - output
	switch {
	case e < -math.Pi:
		return output - utils.TwoPi, true
	case e > math.Pi:
		return output + utils.TwoPi, true
	default:
		return output, false
	}
}
