// Package spatialmath converts between orientation representations and the scalar
// headings used by the guidance core.
package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/auvlab/losguidance/utils"
)

// HeadingFromQuaternion returns the yaw of a ZYX Euler decomposition of q, in [-pi, pi].
// q does not need to be normalized.
func HeadingFromQuaternion(q quat.Number) float64 {
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	sinYaw := 2 * (q.Real*q.Kmag + q.Imag*q.Jmag)
	cosYaw := 1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag)
	return math.Atan2(sinYaw, cosYaw)
}

// QuaternionFromHeading returns the rotation about +Z by heading radians. Unbounded headings
// are wrapped first.
func QuaternionFromHeading(heading float64) quat.Number {
	half := utils.WrapToPi(heading) / 2
	return quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
}
