// Package sim provides a simple planar AUV model and a clock-driven loop that feeds its
// state to a guidance node and applies the commands it publishes.
package sim

import (
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/auvlab/losguidance/spatialmath"
	"github.com/auvlab/losguidance/vehicle"
)

// AUVConfig holds the rigid body and damping parameters of the simulated vehicle.
type AUVConfig struct {
	Mass         float64
	Inertia      float64
	SurgeDamping float64
	SwayDamping  float64
	HeaveDamping float64
	YawDamping   float64
}

// DefaultAUVConfig matches the default controller model.
func DefaultAUVConfig() AUVConfig {
	return AUVConfig{
		Mass:         20,
		Inertia:      2,
		SurgeDamping: 10,
		SwayDamping:  15,
		HeaveDamping: 15,
		YawDamping:   3,
	}
}

// Validate checks the parameters are physical.
func (cfg AUVConfig) Validate() error {
	if cfg.Mass <= 0 || cfg.Inertia <= 0 {
		return errors.New("mass and inertia must be positive")
	}
	if cfg.SurgeDamping < 0 || cfg.SwayDamping < 0 || cfg.HeaveDamping < 0 || cfg.YawDamping < 0 {
		return errors.New("damping must not be negative")
	}
	return nil
}

// AUV is a decoupled, linearly damped vehicle moving in the horizontal plane with an
// independent heave axis.
type AUV struct {
	mu          sync.Mutex
	cfg         AUVConfig
	position    r3.Vector
	velocity    r3.Vector
	orientation quat.Number
	yawRate     float64
	time        float64
	force       r3.Vector
	torque      r3.Vector
}

// NewAUV returns a vehicle at rest at position with the given heading.
func NewAUV(cfg AUVConfig, position r3.Vector, heading float64) (*AUV, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AUV{
		cfg:         cfg,
		position:    position,
		orientation: spatialmath.QuaternionFromHeading(heading),
	}, nil
}

// Apply sets the wrench held until the next call.
func (a *AUV) Apply(force, torque r3.Vector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.force = force
	a.torque = torque
}

// Step integrates the model over dt seconds with explicit Euler.
func (a *AUV) Step(dt float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	heading := spatialmath.HeadingFromQuaternion(a.orientation)
	u, v, w := a.velocity.X, a.velocity.Y, a.velocity.Z
	cos, sin := math.Cos(heading), math.Sin(heading)

	a.position.X += (u*cos - v*sin) * dt
	a.position.Y += (u*sin + v*cos) * dt
	a.position.Z += w * dt

	a.velocity.X += (a.force.X - a.cfg.SurgeDamping*u) / a.cfg.Mass * dt
	a.velocity.Y += (a.force.Y - a.cfg.SwayDamping*v) / a.cfg.Mass * dt
	a.velocity.Z += (a.force.Z - a.cfg.HeaveDamping*w) / a.cfg.Mass * dt

	heading += a.yawRate * dt
	a.yawRate += (a.torque.Z - a.cfg.YawDamping*a.yawRate) / a.cfg.Inertia * dt
	a.orientation = spatialmath.QuaternionFromHeading(heading)
	a.time += dt
}

// Sample returns the current state as an estimator would publish it.
func (a *AUV) Sample() vehicle.Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	return vehicle.SampleFromOdometry(a.position, a.velocity, a.orientation, a.yawRate, a.time)
}

// Planar returns the horizontal position.
func (a *AUV) Planar() r2.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return r2.Point{X: a.position.X, Y: a.position.Y}
}
