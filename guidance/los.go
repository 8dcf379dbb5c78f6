// Package guidance implements line-of-sight steering toward a waypoint and the shaping of
// its output into a smooth reference trajectory.
package guidance

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrZeroLookahead is returned when steering with a zero look-ahead distance.
	ErrZeroLookahead = errors.New("look-ahead distance must be non-zero")
	// ErrDegenerateSegment is returned when a segment's endpoints coincide.
	ErrDegenerateSegment = errors.New("previous and next waypoints coincide")
)

// Segment is the straight path from the previous waypoint to the next one.
type Segment struct {
	Previous r2.Point `json:"previous"`
	Next     r2.Point `json:"next"`
}

// Degenerate reports whether the segment has no direction.
func (s Segment) Degenerate() bool {
	return s.Previous == s.Next
}

// Angle is the path-tangential angle alpha, in (-pi, pi]. It is 0 for a degenerate segment.
func (s Segment) Angle() float64 {
	d := s.Next.Sub(s.Previous)
	return math.Atan2(d.Y, d.X)
}

// Project expresses pos in the path-fixed frame of seg: along is the along-track distance
// from the previous waypoint, cross is the cross-track error (positive to the left).
func Project(pos r2.Point, seg Segment) (along, cross float64) {
	alpha := seg.Angle()
	c, s := math.Cos(alpha), math.Sin(alpha)
	// transpose of the rotation by alpha
	rt := mat.NewDense(2, 2, []float64{
		c, s,
		-s, c,
	})
	d := pos.Sub(seg.Previous)
	var eps mat.VecDense
	eps.MulVec(rt, mat.NewVecDense(2, []float64{d.X, d.Y}))
	return eps.AtVec(0), eps.AtVec(1)
}

// Solution holds the intermediate values of one steering computation.
type Solution struct {
	PathAngle      float64 `json:"alpha"`
	AlongTrack     float64 `json:"s"`
	CrossTrack     float64 `json:"e"`
	RelativeAngle  float64 `json:"chi_r"`
	DesiredHeading float64 `json:"chi_d"`
}

// Steer runs the lookahead-based steering law. The desired heading is alpha + atan(-e/delta)
// and is deliberately left on alpha's branch; it is not normalized.
func Steer(pos r2.Point, seg Segment, lookahead float64) (Solution, error) {
	if lookahead == 0 {
		return Solution{}, ErrZeroLookahead
	}
	along, cross := Project(pos, seg)
	alpha := seg.Angle()
	chiR := math.Atan(-cross / lookahead)
	return Solution{
		PathAngle:      alpha,
		AlongTrack:     along,
		CrossTrack:     cross,
		RelativeAngle:  chiR,
		DesiredHeading: alpha + chiR,
	}, nil
}

// DesiredHeading returns only the desired heading of Steer.
func DesiredHeading(pos r2.Point, seg Segment, lookahead float64) (float64, error) {
	sol, err := Steer(pos, seg, lookahead)
	if err != nil {
		return 0, err
	}
	return sol.DesiredHeading, nil
}

// DistanceToTarget is the horizontal distance from pos to the next waypoint.
func DistanceToTarget(pos r2.Point, seg Segment) float64 {
	return seg.Next.Sub(pos).Norm()
}

// HasArrived reports whether pos is strictly inside the sphere of acceptance around the
// next waypoint.
func HasArrived(pos r2.Point, seg Segment, radius float64) bool {
	return DistanceToTarget(pos, seg) < radius
}
