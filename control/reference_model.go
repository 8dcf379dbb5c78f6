package control

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ReferenceModelConfig parameterizes the reference model. The surge channel is a first
// order low-pass; the heading channel is a mass-spring-damper.
type ReferenceModelConfig struct {
	SurgeBandwidth     float64 `json:"surge_bandwidth" mapstructure:"surge_bandwidth"`
	HeadingNaturalFreq float64 `json:"heading_natural_freq" mapstructure:"heading_natural_freq"`
	HeadingDamping     float64 `json:"heading_damping" mapstructure:"heading_damping"`
}

// DefaultReferenceModelConfig returns a critically damped heading model.
func DefaultReferenceModelConfig() ReferenceModelConfig {
	return ReferenceModelConfig{
		SurgeBandwidth:     0.4,
		HeadingNaturalFreq: 0.5,
		HeadingDamping:     1.0,
	}
}

// Validate ensures the model is stable.
func (cfg ReferenceModelConfig) Validate() error {
	if cfg.SurgeBandwidth <= 0 {
		return errors.Errorf("surge_bandwidth must be positive, got %v", cfg.SurgeBandwidth)
	}
	if cfg.HeadingNaturalFreq <= 0 {
		return errors.Errorf("heading_natural_freq must be positive, got %v", cfg.HeadingNaturalFreq)
	}
	if cfg.HeadingDamping <= 0 {
		return errors.Errorf("heading_damping must be positive, got %v", cfg.HeadingDamping)
	}
	return nil
}

// ReferenceModel is the Tustin discretization of
//
//	u_d'   = wu (u_c - u_d)
//	psi_d' = r_d
//	r_d'   = w^2 (psi_c - psi_d) - 2 zeta w r_d
//
// with state x = [u_d psi_d r_d] and command c = [u_c psi_c].
type ReferenceModel struct {
	mu  sync.Mutex
	cfg ReferenceModelConfig
	ad  *mat.Dense
	bd  *mat.Dense
	x   *mat.VecDense
	c   *mat.VecDense
}

// NewReferenceModel returns a model sampled every h seconds and resting at (speed, heading).
func NewReferenceModel(cfg ReferenceModelConfig, h, speed, heading float64) (*ReferenceModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if h <= 0 {
		return nil, errors.Errorf("sample period must be positive, got %v", h)
	}
	w := cfg.HeadingNaturalFreq
	a := mat.NewDense(3, 3, []float64{
		-cfg.SurgeBandwidth, 0, 0,
		0, 0, 1,
		0, -w * w, -2 * cfg.HeadingDamping * w,
	})
	b := mat.NewDense(3, 2, []float64{
		cfg.SurgeBandwidth, 0,
		0, 0,
		0, w * w,
	})

	eye := mat.NewDiagDense(3, []float64{1, 1, 1})
	var lhs, rhs mat.Dense
	lhs.Scale(-h/2, a)
	lhs.Add(eye, &lhs)
	rhs.Scale(h/2, a)
	rhs.Add(eye, &rhs)

	var lhsInv mat.Dense
	if err := lhsInv.Inverse(&lhs); err != nil {
		return nil, errors.Wrap(err, "cannot discretize reference model")
	}
	ad := mat.NewDense(3, 3, nil)
	ad.Mul(&lhsInv, &rhs)
	bd := mat.NewDense(3, 2, nil)
	bd.Mul(&lhsInv, b)
	bd.Scale(h/2, bd)

	rm := &ReferenceModel{cfg: cfg, ad: ad, bd: bd, x: mat.NewVecDense(3, nil), c: mat.NewVecDense(2, nil)}
	rm.reset(speed, heading)
	return rm, nil
}

func (rm *ReferenceModel) reset(speed, heading float64) {
	rm.x.SetVec(0, speed)
	rm.x.SetVec(1, heading)
	rm.x.SetVec(2, 0)
	rm.c.SetVec(0, speed)
	rm.c.SetVec(1, heading)
}

// Reset discards the filter state and rests it at (speed, heading).
func (rm *ReferenceModel) Reset(speed, heading float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.reset(speed, heading)
}

// Step advances the model one period toward the command and returns the shaped trajectory.
func (rm *ReferenceModel) Step(speed, heading float64) Trajectory {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cmd := mat.NewVecDense(2, []float64{speed, heading})
	var sum mat.VecDense
	sum.AddVec(rm.c, cmd)

	var next, drive mat.VecDense
	next.MulVec(rm.ad, rm.x)
	drive.MulVec(rm.bd, &sum)
	next.AddVec(&next, &drive)

	rm.x.CopyVec(&next)
	rm.c.CopyVec(cmd)
	return rm.output()
}

// Output returns the trajectory for the current state and last command.
func (rm *ReferenceModel) Output() Trajectory {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.output()
}

func (rm *ReferenceModel) output() Trajectory {
	w := rm.cfg.HeadingNaturalFreq
	u, psi, r := rm.x.AtVec(0), rm.x.AtVec(1), rm.x.AtVec(2)
	return Trajectory{
		SurgeSpeed: u,
		SurgeAccel: rm.cfg.SurgeBandwidth * (rm.c.AtVec(0) - u),
		Heading:    psi,
		YawRate:    r,
		YawAccel:   w*w*(rm.c.AtVec(1)-psi) - 2*rm.cfg.HeadingDamping*w*r,
	}
}
