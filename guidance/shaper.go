package guidance

import (
	"sync"

	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/vehicle"
)

// Shaped is the output of one shaping step.
type Shaped struct {
	Trajectory control.Trajectory
	// Reference is the heading fed to the filter after unwrapping.
	Reference float64
	// Reset is true when the filter output had wrapped and the filter was re-initialized
	// at the vehicle's state.
	Reset bool
}

// Shaper feeds commanded (speed, heading) pairs through a reference model while keeping the
// heading input and output on the same branch as the measured heading.
type Shaper struct {
	mu    sync.Mutex
	model *control.ReferenceModel
	// offset is the whole number of turns added to commanded headings, carried from tick
	// to tick.
	offset float64
	resets int
}

// NewShaper returns a shaper whose filter rests at (speed, heading).
func NewShaper(cfg control.ReferenceModelConfig, period, speed, heading float64) (*Shaper, error) {
	model, err := control.NewReferenceModel(cfg, period, speed, heading)
	if err != nil {
		return nil, err
	}
	return &Shaper{model: model}, nil
}

// Reset re-initializes the filter at (speed, heading) and forgets accumulated turns.
func (s *Shaper) Reset(speed, heading float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Reset(speed, heading)
	s.offset = 0
	s.resets = 0
}

// Shape runs one shaping step for the commanded heading from the guidance law.
func (s *Shaper) Shape(state vehicle.State, speed, commanded float64) Shaped {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.shapeReference(state, speed, commanded+s.offset)
	s.offset = out.Reference - commanded
	return out
}

func (s *Shaper) shapeReference(state vehicle.State, speed, reference float64) Shaped {
	reference = UnwrapReference(state.Heading, reference)
	traj := s.model.Step(speed, reference)

	corrected, wrapped := CorrectOutput(state.Heading, traj.Heading)
	if !wrapped {
		return Shaped{Trajectory: traj, Reference: reference}
	}
	s.model.Reset(state.Surge(), state.Heading)
	traj = s.model.Step(speed, corrected)
	s.resets++
	return Shaped{Trajectory: traj, Reference: reference, Reset: true}
}

// Resets returns how many times the filter was re-initialized since the last Reset.
func (s *Shaper) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
