// Package control contains the trajectory shaping filter and the control laws that turn a
// shaped trajectory into generalized forces.
package control

import (
	"github.com/auvlab/losguidance/vehicle"
)

// Trajectory is a shaped reference: desired surge and heading with their derivatives.
type Trajectory struct {
	SurgeSpeed float64 `json:"u_d"`
	SurgeAccel float64 `json:"u_d_dot"`
	Heading    float64 `json:"psi_d"`
	YawRate    float64 `json:"r_d"`
	YawAccel   float64 `json:"r_d_dot"`
}

// Wrench is a generalized force in the horizontal plane, body frame.
type Wrench struct {
	Surge float64 `json:"surge"`
	Sway  float64 `json:"sway"`
	Yaw   float64 `json:"yaw"`
}

// TrajectoryController turns the measured state and a shaped trajectory into a wrench.
type TrajectoryController interface {
	ControlLaw(measured vehicle.State, desired Trajectory) Wrench
}

// GainUpdater is implemented by controllers whose gains can be changed at runtime.
type GainUpdater interface {
	UpdateGains(gains PIDGains)
}
