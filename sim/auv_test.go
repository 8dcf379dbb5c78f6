package sim

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewAUVValidates(t *testing.T) {
	cfg := DefaultAUVConfig()
	cfg.Mass = 0
	_, err := NewAUV(cfg, r3.Vector{}, 0)
	test.That(t, err, test.ShouldBeError, "mass and inertia must be positive")

	cfg = DefaultAUVConfig()
	cfg.YawDamping = -1
	_, err = NewAUV(cfg, r3.Vector{}, 0)
	test.That(t, err, test.ShouldBeError, "damping must not be negative")
}

func TestAUVAtRest(t *testing.T) {
	auv, err := NewAUV(DefaultAUVConfig(), r3.Vector{X: 1, Y: 2, Z: 3}, 0.5)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 10; i++ {
		auv.Step(0.05)
	}
	s := auv.Sample()
	test.That(t, s.Position, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, s.Heading, test.ShouldAlmostEqual, 0.5)
	test.That(t, s.Time, test.ShouldAlmostEqual, 0.5)
}

func TestAUVSurgeReachesTerminalSpeed(t *testing.T) {
	auv, err := NewAUV(DefaultAUVConfig(), r3.Vector{}, math.Pi/2)
	test.That(t, err, test.ShouldBeNil)
	auv.Apply(r3.Vector{X: 10}, r3.Vector{})
	for i := 0; i < 600; i++ {
		auv.Step(0.05)
	}
	s := auv.Sample()
	// terminal surge is force over damping
	test.That(t, s.Velocity.X, test.ShouldAlmostEqual, 1.0, 1e-3)
	test.That(t, s.Position.Y, test.ShouldBeGreaterThan, 20)
	test.That(t, s.Position.X, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, auv.Planar().Y, test.ShouldEqual, s.Position.Y)
}

func TestAUVHeadingStaysWrapped(t *testing.T) {
	auv, err := NewAUV(DefaultAUVConfig(), r3.Vector{}, 3)
	test.That(t, err, test.ShouldBeNil)
	auv.Apply(r3.Vector{}, r3.Vector{Z: 3})
	crossed := false
	prev := auv.Sample().Heading
	for i := 0; i < 200; i++ {
		auv.Step(0.05)
		s := auv.Sample()
		test.That(t, s.Heading, test.ShouldBeBetweenOrEqual, -math.Pi, math.Pi)
		if prev > 2 && s.Heading < -2 {
			crossed = true
		}
		prev = s.Heading
	}
	test.That(t, crossed, test.ShouldBeTrue)
	test.That(t, auv.Sample().YawRate, test.ShouldAlmostEqual, 1.0, 1e-3)
}
