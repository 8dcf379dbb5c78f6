package control

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/auvlab/losguidance/vehicle"
)

// BacksteppingConfig holds the model and gains of the default surge/yaw autopilot.
type BacksteppingConfig struct {
	Mass         float64  `json:"mass" mapstructure:"mass"`
	Inertia      float64  `json:"inertia" mapstructure:"inertia"`
	SurgeDamping float64  `json:"surge_damping" mapstructure:"surge_damping"`
	SwayDamping  float64  `json:"sway_damping" mapstructure:"sway_damping"`
	YawDamping   float64  `json:"yaw_damping" mapstructure:"yaw_damping"`
	SurgeGain    float64  `json:"surge_gain" mapstructure:"surge_gain"`
	SwayGain     float64  `json:"sway_gain" mapstructure:"sway_gain"`
	HeadingGain  float64  `json:"heading_gain" mapstructure:"heading_gain"`
	YawRateGain  float64  `json:"yaw_rate_gain" mapstructure:"yaw_rate_gain"`
	Heading      PIDGains `json:"heading_pid" mapstructure:"heading_pid"`
}

// DefaultBacksteppingConfig returns untuned but stable defaults.
func DefaultBacksteppingConfig() BacksteppingConfig {
	return BacksteppingConfig{
		Mass:         20,
		Inertia:      2,
		SurgeDamping: 10,
		SwayDamping:  15,
		YawDamping:   3,
		SurgeGain:    1,
		SwayGain:     0.5,
		HeadingGain:  1,
		YawRateGain:  1.5,
		Heading:      PIDGains{P: 5, I: 1, D: 0, Sat: 1},
	}
}

// Validate checks the physical parameters and gains.
func (cfg BacksteppingConfig) Validate() error {
	if cfg.Mass <= 0 {
		return errors.Errorf("mass must be positive, got %v", cfg.Mass)
	}
	if cfg.Inertia <= 0 {
		return errors.Errorf("inertia must be positive, got %v", cfg.Inertia)
	}
	if cfg.HeadingGain <= 0 || cfg.YawRateGain <= 0 {
		return errors.New("heading_gain and yaw_rate_gain must be positive")
	}
	return errors.Wrap(cfg.Heading.Validate(), "heading_pid")
}

// Backstepping is the default TrajectoryController. Surge is feedback linearized, yaw uses
// a two-step backstepping design on (psi, r) plus a PID term on heading error whose gains
// are runtime tunable.
type Backstepping struct {
	mu      sync.Mutex
	cfg     BacksteppingConfig
	heading *PIDRegulator
}

// NewBackstepping returns a controller for cfg.
func NewBackstepping(cfg BacksteppingConfig) (*Backstepping, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backstepping{cfg: cfg, heading: NewPIDRegulator(cfg.Heading)}, nil
}

// ControlLaw implements TrajectoryController.
func (b *Backstepping) ControlLaw(measured vehicle.State, desired Trajectory) Wrench {
	b.mu.Lock()
	cfg := b.cfg
	b.mu.Unlock()

	u, v, r := measured.Surge(), measured.Sway(), measured.YawRate

	surge := cfg.Mass*(desired.SurgeAccel-cfg.SurgeGain*(u-desired.SurgeSpeed)) + cfg.SurgeDamping*u
	sway := (cfg.SwayDamping - cfg.Mass*cfg.SwayGain) * v

	z1 := measured.Heading - desired.Heading
	alpha := desired.YawRate - cfg.HeadingGain*z1
	z2 := r - alpha
	alphaDot := desired.YawAccel - cfg.HeadingGain*(r-desired.YawRate)
	yaw := cfg.Inertia*(alphaDot-z1-cfg.YawRateGain*z2) + cfg.YawDamping*r
	yaw += b.heading.Regulate(desired.Heading-measured.Heading, measured.Time)

	return Wrench{Surge: surge, Sway: sway, Yaw: yaw}
}

// UpdateGains implements GainUpdater for the heading PID term.
func (b *Backstepping) UpdateGains(gains PIDGains) {
	b.mu.Lock()
	b.cfg.Heading = gains
	b.mu.Unlock()
	b.heading.UpdateGains(gains)
}

// Config returns the active configuration.
func (b *Backstepping) Config() BacksteppingConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}
