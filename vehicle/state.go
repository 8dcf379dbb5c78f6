// Package vehicle tracks the latest state estimate of the vehicle.
package vehicle

import (
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/auvlab/losguidance/spatialmath"
)

// DefaultPeriod is the nominal sample period of the state feed (20 Hz).
const DefaultPeriod = 50 * time.Millisecond

// Sample is one state estimate as delivered by the state feed.
type Sample struct {
	// Position in the world frame, meters.
	Position r3.Vector
	// Velocity is body-fixed (u, v, w), m/s.
	Velocity r3.Vector
	// Heading in radians. Not normalized.
	Heading float64
	// YawRate in rad/s.
	YawRate float64
	// Time is a monotonic timestamp in seconds.
	Time float64
}

// SampleFromOdometry builds a Sample from an orientation quaternion as published by an
// estimator. The heading is the quaternion's yaw.
func SampleFromOdometry(position, velocity r3.Vector, orientation quat.Number, yawRate, t float64) Sample {
	return Sample{
		Position: position,
		Velocity: velocity,
		Heading:  spatialmath.HeadingFromQuaternion(orientation),
		YawRate:  yawRate,
		Time:     t,
	}
}

// State is the tracked vehicle state.
type State struct {
	Position r3.Vector
	Velocity r3.Vector
	Heading  float64
	YawRate  float64
	Time     float64
	// SurgeAccel is (u - u_prev) / h, h being the configured period.
	SurgeAccel float64
}

// Surge returns the body-fixed forward speed u.
func (s State) Surge() float64 {
	return s.Velocity.X
}

// Sway returns the body-fixed lateral speed v.
func (s State) Sway() float64 {
	return s.Velocity.Y
}

// Planar returns the horizontal position.
func (s State) Planar() r2.Point {
	return r2.Point{X: s.Position.X, Y: s.Position.Y}
}

// Tracker holds the latest state. Updates are assumed periodic at 1/period.
type Tracker struct {
	mu     sync.RWMutex
	period float64
	state  State
}

// NewTracker returns a tracker for a feed with the given nominal period. A non-positive
// period falls back to DefaultPeriod.
func NewTracker(period time.Duration) *Tracker {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Tracker{period: period.Seconds()}
}

// Period returns the nominal update period in seconds.
func (t *Tracker) Period() float64 {
	return t.period
}

// Update overwrites the stored state with sample and returns the result.
func (t *Tracker) Update(sample Sample) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	prevSurge := t.state.Velocity.X
	t.state = State{
		Position:   sample.Position,
		Velocity:   sample.Velocity,
		Heading:    sample.Heading,
		YawRate:    sample.YawRate,
		Time:       sample.Time,
		SurgeAccel: (sample.Velocity.X - prevSurge) / t.period,
	}
	return t.state
}

// State returns the latest state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
