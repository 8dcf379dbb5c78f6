package guidance

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/vehicle"
)

const period = 0.05

func TestShaperConvergesWithoutReset(t *testing.T) {
	s, err := NewShaper(control.DefaultReferenceModelConfig(), period, 0, 0)
	test.That(t, err, test.ShouldBeNil)

	st := vehicle.State{Heading: 0}
	var out Shaped
	for i := 0; i < 800; i++ {
		out = s.Shape(st, 0.5, 1.2)
		test.That(t, out.Reset, test.ShouldBeFalse)
	}
	test.That(t, out.Trajectory.Heading, test.ShouldAlmostEqual, 1.2, 1e-4)
	test.That(t, out.Trajectory.SurgeSpeed, test.ShouldAlmostEqual, 0.5, 1e-4)
	test.That(t, out.Reference, test.ShouldEqual, 1.2)

	// once converged the vehicle holding the same heading never triggers a reset
	st.Heading = 1.2
	for i := 0; i < 100; i++ {
		out = s.Shape(st, 0.5, 1.2)
		test.That(t, out.Reset, test.ShouldBeFalse)
	}
	test.That(t, s.Resets(), test.ShouldEqual, 0)
}

func TestShaperUnwrapsCommandAcrossPi(t *testing.T) {
	// vehicle heading just past -pi, guidance commanding just below +pi
	s, err := NewShaper(control.DefaultReferenceModelConfig(), period, 0.3, -3.1)
	test.That(t, err, test.ShouldBeNil)

	st := vehicle.State{Velocity: r3.Vector{X: 0.3}, Heading: -3.1}
	out := s.Shape(st, 0.3, 3.1)
	test.That(t, out.Reset, test.ShouldBeFalse)
	test.That(t, out.Reference, test.ShouldAlmostEqual, 3.1-2*math.Pi, 1e-12)
	// the filter moves a little toward -3.18, not a full turn toward +3.1
	test.That(t, out.Trajectory.Heading, test.ShouldBeLessThan, -3.1)
	test.That(t, out.Trajectory.Heading, test.ShouldBeGreaterThan, -3.11)

	// the offset is carried: the next tick needs no further unwrapping
	out = s.Shape(st, 0.3, 3.1)
	test.That(t, out.Reference, test.ShouldAlmostEqual, 3.1-2*math.Pi, 1e-12)
}

func TestShaperResetsOnWrappedOutput(t *testing.T) {
	s, err := NewShaper(control.DefaultReferenceModelConfig(), period, 0.3, 3.1)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 5; i++ {
		s.Shape(vehicle.State{Velocity: r3.Vector{X: 0.3}, Heading: 3.1}, 0.3, 3.1)
	}

	// measured heading wraps from +3.13 to -3.13
	st := vehicle.State{Velocity: r3.Vector{X: 0.32}, Heading: -3.13}
	out := s.Shape(st, 0.3, 3.1)
	test.That(t, out.Reset, test.ShouldBeTrue)
	test.That(t, s.Resets(), test.ShouldEqual, 1)
	// re-initialized at the vehicle's state
	test.That(t, out.Trajectory.Heading, test.ShouldAlmostEqual, -3.13, 1e-3)
	test.That(t, out.Trajectory.SurgeSpeed, test.ShouldAlmostEqual, 0.32, 1e-3)
	test.That(t, math.Abs(st.Heading-out.Trajectory.Heading), test.ShouldBeLessThan, math.Pi)

	// the next tick continues from the resynchronized state
	out = s.Shape(st, 0.3, 3.1)
	test.That(t, out.Reset, test.ShouldBeFalse)

	s.Reset(0, 0)
	test.That(t, s.Resets(), test.ShouldEqual, 0)
}

func TestShaperWrappedOutputTurnsTowardMeasured(t *testing.T) {
	for _, tc := range []struct {
		name               string
		settled, measured  float64
		expectAboveMeasure bool
	}{
		// output near +pi while the vehicle reads just past -pi: the corrected heading sits
		// one turn below, so the resynchronized filter keeps turning the same way
		{"positive to negative", 3.1, -3.13, false},
		{"negative to positive", -3.1, 3.13, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewShaper(control.DefaultReferenceModelConfig(), period, 0.3, tc.settled)
			test.That(t, err, test.ShouldBeNil)
			for i := 0; i < 5; i++ {
				s.Shape(vehicle.State{Velocity: r3.Vector{X: 0.3}, Heading: tc.settled}, 0.3, tc.settled)
			}

			st := vehicle.State{Velocity: r3.Vector{X: 0.3}, Heading: tc.measured}
			out := s.Shape(st, 0.3, tc.settled)
			test.That(t, out.Reset, test.ShouldBeTrue)
			if tc.expectAboveMeasure {
				test.That(t, out.Trajectory.Heading, test.ShouldBeGreaterThan, tc.measured)
			} else {
				test.That(t, out.Trajectory.Heading, test.ShouldBeLessThan, tc.measured)
			}
			test.That(t, math.Abs(out.Trajectory.Heading-tc.measured), test.ShouldBeLessThan, 0.1)
		})
	}
}

func TestShaperReturnsUnwrappedReference(t *testing.T) {
	s, err := NewShaper(control.DefaultReferenceModelConfig(), period, 0, 0.5)
	test.That(t, err, test.ShouldBeNil)
	out := s.Shape(vehicle.State{Heading: 0.5}, 0, 0.5+2*math.Pi)
	test.That(t, out.Reference, test.ShouldAlmostEqual, 0.5, 1e-12)
	test.That(t, out.Reset, test.ShouldBeFalse)
}

func TestNewShaperRejectsBadConfig(t *testing.T) {
	_, err := NewShaper(control.ReferenceModelConfig{}, period, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
