package control

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/auvlab/losguidance/utils"
)

// PIDGains are the tunables of a PIDRegulator.
type PIDGains struct {
	P   float64 `json:"p" mapstructure:"p"`
	I   float64 `json:"i" mapstructure:"i"`
	D   float64 `json:"d" mapstructure:"d"`
	Sat float64 `json:"sat" mapstructure:"sat"`
}

// Validate ensures the gains describe a usable regulator.
func (g PIDGains) Validate() error {
	if g.Sat <= 0 {
		return errors.Errorf("saturation must be positive, got %v", g.Sat)
	}
	if g.P == 0 && g.I == 0 && g.D == 0 {
		return errors.New("pid should have at least one of p, i or d set")
	}
	return nil
}

// PIDRegulator is a 1D PID regulator driven by absolute timestamps. The integral uses the
// trapezoidal rule; when the output saturates it is clamped to Sat and the integral is
// cleared.
type PIDRegulator struct {
	mu       sync.Mutex
	gains    PIDGains
	integral float64
	prevErr  float64
	prevT    float64
}

// NewPIDRegulator returns a regulator with the given gains.
func NewPIDRegulator(gains PIDGains) *PIDRegulator {
	return &PIDRegulator{gains: gains, prevT: -1}
}

// Regulate returns the control output for err observed at time t (seconds). Derivative and
// integral terms only kick in once a previous sample with a positive timestamp exists.
func (p *PIDRegulator) Regulate(err, t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	derivative := 0.0
	dt := t - p.prevT
	if p.prevT > 0 && dt > 0 {
		derivative = (err - p.prevErr) / dt
		p.integral += 0.5 * (err + p.prevErr) * dt
	}

	u := p.gains.P*err + p.gains.D*derivative + p.gains.I*p.integral

	p.prevErr = err
	p.prevT = t

	if math.Abs(u) > p.gains.Sat {
		// controller is in saturation: limit output, reset integral
		u = utils.Clamp(u, -p.gains.Sat, p.gains.Sat)
		p.integral = 0
	}
	return u
}

// Gains returns the current gains.
func (p *PIDRegulator) Gains() PIDGains {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gains
}

// UpdateGains swaps the gains. Accumulated state is kept.
func (p *PIDRegulator) UpdateGains(gains PIDGains) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gains = gains
}
