package navigation

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/auvlab/losguidance/config"
	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/guidance"
	"github.com/auvlab/losguidance/logging"
	"github.com/auvlab/losguidance/spatialmath"
	"github.com/auvlab/losguidance/vehicle"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCollector records metrics on c.
func WithCollector(c *Collector) Option {
	return func(coord *Coordinator) {
		coord.metrics = c
	}
}

// Coordinator owns every piece of per-goal state: the goal lifecycle, the waypoint segment,
// the guidance parameters and the reference filter. All entry points hold one lock, so each
// tick is applied atomically with respect to goal and preempt events.
type Coordinator struct {
	mu         sync.Mutex
	logger     logging.Logger
	metrics    *Collector
	tracker    *vehicle.Tracker
	controller control.TrajectoryController
	depth      DepthRegulator

	lookahead float64

	state      GoalState
	goal       Goal
	segment    guidance.Segment
	hasSegment bool
	// shaper is reset at the vehicle's state for every accepted goal and only stepped
	// while a goal is active.
	shaper *guidance.Shaper
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator(
	cfg *config.Config,
	controller control.TrajectoryController,
	depth DepthRegulator,
	logger logging.Logger,
	opts ...Option,
) (*Coordinator, error) {
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	if controller == nil {
		return nil, errors.New("trajectory controller is required")
	}
	if depth == nil {
		return nil, errors.New("depth regulator is required")
	}
	c := &Coordinator{
		logger:     logger,
		tracker:    vehicle.NewTracker(cfg.Period()),
		controller: controller,
		depth:      depth,
		lookahead:  cfg.Guidance.Lookahead,
	}
	shaper, err := guidance.NewShaper(cfg.ReferenceModel, c.tracker.Period(), 0, 0)
	if err != nil {
		return nil, err
	}
	c.shaper = shaper
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.setState(c.state)
	return c, nil
}

// AcceptGoal makes g the active goal. The segment starts at the vehicle's current position.
// A goal accepted while another is active replaces it without a result. Rejected goals leave
// all state unchanged.
func (c *Coordinator) AcceptGoal(ctx context.Context, g Goal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	measured := c.tracker.State()
	seg := guidance.Segment{Previous: measured.Planar(), Next: g.Waypoint}
	if seg.Degenerate() {
		c.metrics.goal("rejected")
		return errors.Wrapf(ErrDegenerateGoal, "waypoint (%v, %v)", g.Waypoint.X, g.Waypoint.Y)
	}
	if !(g.AcceptanceRadius > 0) {
		c.metrics.goal("rejected")
		return errors.Wrapf(ErrInvalidAcceptanceRadius, "got %v", g.AcceptanceRadius)
	}

	if c.state == GoalStateActive {
		c.logger.CInfow(ctx, "superseding active goal", "old", c.goal.ID, "new", g.ID)
		c.metrics.goal("superseded")
	}
	c.goal = g
	c.segment = seg
	c.hasSegment = true
	c.shaper.Reset(measured.Surge(), measured.Heading)
	c.setState(GoalStateActive)
	c.metrics.goal("accepted")
	c.logger.CInfow(ctx, "goal accepted",
		"id", g.ID,
		"waypoint", g.Waypoint,
		"speed", g.Speed,
		"depth", g.Depth,
		"radius", g.AcceptanceRadius,
	)
	return nil
}

// Preempt cancels the active goal. It returns the preempted result and true, or false when no
// goal was active.
func (c *Coordinator) Preempt(ctx context.Context) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != GoalStateActive {
		c.logger.CDebugw(ctx, "preempt ignored", "state", c.state)
		return Result{}, false
	}
	c.setState(GoalStatePreempted)
	c.metrics.goal("preempted")
	c.logger.CInfow(ctx, "goal preempted", "id", c.goal.ID)
	return Result{GoalID: c.goal.ID, Text: ResultPreempted}, true
}

// Tick applies one state sample. The returned error is non-nil only when guidance could not
// be computed; the output still carries the updated state.
func (c *Coordinator) Tick(ctx context.Context, sample vehicle.Sample) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	measured := c.tracker.Update(sample)
	if c.state == GoalStateSucceeded || c.state == GoalStatePreempted {
		c.setState(GoalStateIdle)
	}
	out := Output{State: measured, GoalState: c.state}
	if !c.hasSegment {
		return out, nil
	}

	pos := measured.Planar()
	sol, err := guidance.Steer(pos, c.segment, c.lookahead)
	if err != nil {
		return out, errors.Wrap(err, "cannot compute desired heading")
	}
	out.Guidance = &sol
	if c.state != GoalStateActive {
		return out, nil
	}

	shaped := c.shaper.Shape(measured, c.goal.Speed, sol.DesiredHeading)
	if shaped.Reset {
		c.metrics.filterReset()
		c.logger.CDebugw(ctx, "reference filter reset after heading wrap",
			"heading", measured.Heading, "reference", shaped.Reference)
	}
	out.Desired = &Desired{
		Trajectory:  shaped.Trajectory,
		Orientation: spatialmath.QuaternionFromHeading(shaped.Trajectory.Heading),
		Measured:    measured,
		Depth:       c.goal.Depth,
	}

	wrench := c.controller.ControlLaw(measured, shaped.Trajectory)
	heave := c.depth.Regulate(c.goal.Depth-measured.Position.Z, measured.Time)
	cmd := ComposeCommand(wrench, heave)
	out.Command = &cmd

	distance := guidance.DistanceToTarget(pos, c.segment)
	out.Feedback = &Feedback{GoalID: c.goal.ID, DistanceToGoal: distance}
	c.metrics.setDistance(distance)

	if guidance.HasArrived(pos, c.segment, c.goal.AcceptanceRadius) {
		c.setState(GoalStateSucceeded)
		c.metrics.goal("succeeded")
		out.Result = &Result{GoalID: c.goal.ID, Success: true, Text: ResultCompleted}
		c.logger.CInfow(ctx, "goal completed", "id", c.goal.ID, "distance", distance)
	}
	out.GoalState = c.state
	return out, nil
}

// SetLookahead changes the look-ahead distance from the next tick on. The active goal is
// kept.
func (c *Coordinator) SetLookahead(lookahead float64) error {
	if !(lookahead > 0) {
		return errors.Wrapf(guidance.ErrZeroLookahead, "lookahead must be positive, got %v", lookahead)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookahead = lookahead
	return nil
}

// Lookahead returns the look-ahead distance in use.
func (c *Coordinator) Lookahead() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookahead
}

// Reconfigure applies the runtime-tunable parts of cfg: the look-ahead distance and the
// controller's heading gains. Everything else takes effect on restart.
func (c *Coordinator) Reconfigure(cfg *config.Config) error {
	if err := cfg.Validate("config"); err != nil {
		return err
	}
	gains, err := cfg.HeadingGains()
	if err != nil {
		return err
	}
	if err := c.SetLookahead(cfg.Guidance.Lookahead); err != nil {
		return err
	}
	if updater, ok := c.controller.(control.GainUpdater); ok {
		updater.UpdateGains(gains)
	}
	c.logger.Infow("reconfigured", "lookahead", cfg.Guidance.Lookahead, "heading_gains", gains)
	return nil
}

// State returns the current goal state.
func (c *Coordinator) State() GoalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Goal returns the most recently accepted goal and whether it is still active.
func (c *Coordinator) Goal() (Goal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goal, c.state == GoalStateActive
}

// Vehicle returns the latest tracked vehicle state.
func (c *Coordinator) Vehicle() vehicle.State {
	return c.tracker.State()
}

func (c *Coordinator) setState(s GoalState) {
	c.state = s
	c.metrics.setState(s)
}
