package navigation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"github.com/auvlab/losguidance/config"
	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/guidance"
	"github.com/auvlab/losguidance/logging"
	"github.com/auvlab/losguidance/spatialmath"
	"github.com/auvlab/losguidance/utils"
	"github.com/auvlab/losguidance/vehicle"
)

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *control.Backstepping) {
	t.Helper()
	cfg := config.Default()
	ctrl, err := control.NewBackstepping(control.DefaultBacksteppingConfig())
	test.That(t, err, test.ShouldBeNil)
	coord, err := NewCoordinator(cfg, ctrl, control.NewPIDRegulator(cfg.DepthPID), logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	return coord, ctrl
}

func sampleAt(x, y, heading, t float64) vehicle.Sample {
	return vehicle.Sample{Position: r3.Vector{X: x, Y: y}, Heading: heading, Time: t}
}

func TestNewCoordinatorValidates(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := config.Default()
	ctrl, err := control.NewBackstepping(control.DefaultBacksteppingConfig())
	test.That(t, err, test.ShouldBeNil)
	depth := control.NewPIDRegulator(cfg.DepthPID)

	_, err = NewCoordinator(cfg, nil, depth, logger)
	test.That(t, err, test.ShouldBeError, errors.New("trajectory controller is required"))
	_, err = NewCoordinator(cfg, ctrl, nil, logger)
	test.That(t, err, test.ShouldBeError, errors.New("depth regulator is required"))

	cfg.Guidance.Lookahead = 0
	_, err = NewCoordinator(cfg, ctrl, depth, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "lookahead")
}

func TestIdleTick(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateIdle)

	out, err := coord.Tick(ctx, sampleAt(1, 2, 0.3, 0.05))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.GoalState, test.ShouldEqual, GoalStateIdle)
	test.That(t, out.State.Position, test.ShouldResemble, r3.Vector{X: 1, Y: 2})
	test.That(t, out.Guidance, test.ShouldBeNil)
	test.That(t, out.Desired, test.ShouldBeNil)
	test.That(t, out.Command, test.ShouldBeNil)
	test.That(t, out.Feedback, test.ShouldBeNil)
	test.That(t, out.Result, test.ShouldBeNil)
}

func TestGoalLifecycle(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)

	_, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0.05))
	test.That(t, err, test.ShouldBeNil)

	goal := NewGoal(r2.Point{X: 5, Y: 0}, 1, 2, 0.5)
	test.That(t, coord.AcceptGoal(ctx, goal), test.ShouldBeNil)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateActive)
	got, active := coord.Goal()
	test.That(t, active, test.ShouldBeTrue)
	test.That(t, got, test.ShouldResemble, goal)

	t.Run("active tick", func(t *testing.T) {
		out, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0.1))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.GoalState, test.ShouldEqual, GoalStateActive)
		test.That(t, out.Guidance, test.ShouldNotBeNil)
		test.That(t, out.Guidance.PathAngle, test.ShouldEqual, 0.0)
		test.That(t, out.Feedback, test.ShouldResemble, &Feedback{GoalID: goal.ID, DistanceToGoal: 5})
		test.That(t, out.Result, test.ShouldBeNil)
		test.That(t, out.Desired, test.ShouldNotBeNil)
		test.That(t, out.Desired.Depth, test.ShouldEqual, 2.0)
		test.That(t, out.Desired.Trajectory.SurgeSpeed, test.ShouldBeGreaterThan, 0)
		test.That(t, out.Command, test.ShouldNotBeNil)
		test.That(t, out.Command.Force.X, test.ShouldBeGreaterThan, 0)
		// first depth sample is proportional only and saturates
		test.That(t, out.Command.Force.Z, test.ShouldEqual, 10.0)
	})

	t.Run("boundary is exclusive", func(t *testing.T) {
		out, err := coord.Tick(ctx, sampleAt(4.5, 0, 0, 0.15))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Feedback.DistanceToGoal, test.ShouldEqual, 0.5)
		test.That(t, out.Result, test.ShouldBeNil)
		test.That(t, coord.State(), test.ShouldEqual, GoalStateActive)
	})

	t.Run("arrival", func(t *testing.T) {
		out, err := coord.Tick(ctx, sampleAt(4.6, 0, 0, 0.2))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.GoalState, test.ShouldEqual, GoalStateSucceeded)
		test.That(t, out.Command, test.ShouldNotBeNil)
		test.That(t, out.Result, test.ShouldResemble, &Result{GoalID: goal.ID, Success: true, Text: ResultCompleted})
		_, active := coord.Goal()
		test.That(t, active, test.ShouldBeFalse)
	})

	t.Run("result consumed on next tick", func(t *testing.T) {
		out, err := coord.Tick(ctx, sampleAt(4.7, 0, 0, 0.25))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.GoalState, test.ShouldEqual, GoalStateIdle)
		test.That(t, out.Guidance, test.ShouldNotBeNil)
		test.That(t, out.Command, test.ShouldBeNil)
		test.That(t, out.Feedback, test.ShouldBeNil)
		test.That(t, out.Result, test.ShouldBeNil)

		_, ok := coord.Preempt(ctx)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, coord.State(), test.ShouldEqual, GoalStateIdle)
	})
}

func TestPreempt(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)

	_, ok := coord.Preempt(ctx)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateIdle)

	goalA := NewGoal(r2.Point{X: 10, Y: 0}, 1, 0, 1)
	test.That(t, coord.AcceptGoal(ctx, goalA), test.ShouldBeNil)

	res, ok := coord.Preempt(ctx)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, res, test.ShouldResemble, Result{GoalID: goalA.ID, Success: false, Text: ResultPreempted})
	test.That(t, coord.State(), test.ShouldEqual, GoalStatePreempted)

	_, ok = coord.Preempt(ctx)
	test.That(t, ok, test.ShouldBeFalse)

	out, err := coord.Tick(ctx, sampleAt(1, 0, 0, 0.05))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.GoalState, test.ShouldEqual, GoalStateIdle)
	test.That(t, out.Command, test.ShouldBeNil)

	goalB := NewGoal(r2.Point{X: 1, Y: 6}, 1, 0, 1)
	test.That(t, coord.AcceptGoal(ctx, goalB), test.ShouldBeNil)
	out, err = coord.Tick(ctx, sampleAt(1, 0, 0, 0.1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.GoalState, test.ShouldEqual, GoalStateActive)
	test.That(t, out.Feedback.GoalID, test.ShouldEqual, goalB.ID)
	test.That(t, out.Feedback.DistanceToGoal, test.ShouldEqual, 6.0)
	test.That(t, out.Guidance.PathAngle, test.ShouldAlmostEqual, math.Pi/2)
}

func TestPreemptedThenAcceptBeforeTick(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)

	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 3, Y: 0}, 1, 0, 1)), test.ShouldBeNil)
	_, ok := coord.Preempt(ctx)
	test.That(t, ok, test.ShouldBeTrue)

	goalB := NewGoal(r2.Point{X: 0, Y: 3}, 1, 0, 1)
	test.That(t, coord.AcceptGoal(ctx, goalB), test.ShouldBeNil)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateActive)
	out, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0.05))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.GoalState, test.ShouldEqual, GoalStateActive)
	test.That(t, out.Result, test.ShouldBeNil)
}

func TestRejectedGoals(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	test.That(t, err, test.ShouldBeNil)
	coord, _ := newTestCoordinator(t, WithCollector(collector))

	_, err = coord.Tick(ctx, sampleAt(1, 2, 0, 0.05))
	test.That(t, err, test.ShouldBeNil)

	err = coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 1, Y: 2}, 1, 0, 1))
	test.That(t, errors.Is(err, ErrDegenerateGoal), test.ShouldBeTrue)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateIdle)

	for _, radius := range []float64{0, -1, math.NaN()} {
		err = coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 4, Y: 2}, 1, 0, radius))
		test.That(t, errors.Is(err, ErrInvalidAcceptanceRadius), test.ShouldBeTrue)
		test.That(t, coord.State(), test.ShouldEqual, GoalStateIdle)
	}

	active := NewGoal(r2.Point{X: 4, Y: 2}, 1, 0, 1)
	test.That(t, coord.AcceptGoal(ctx, active), test.ShouldBeNil)
	err = coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 1, Y: 2}, 1, 0, 1))
	test.That(t, errors.Is(err, ErrDegenerateGoal), test.ShouldBeTrue)
	got, isActive := coord.Goal()
	test.That(t, isActive, test.ShouldBeTrue)
	test.That(t, got.ID, test.ShouldEqual, active.ID)

	out, err := coord.Tick(ctx, sampleAt(1, 2, 0, 0.1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Feedback.DistanceToGoal, test.ShouldEqual, 3.0)

	test.That(t, testutil.ToFloat64(collector.Goals.WithLabelValues("rejected")), test.ShouldEqual, 5.0)
	test.That(t, testutil.ToFloat64(collector.Goals.WithLabelValues("accepted")), test.ShouldEqual, 1.0)
}

func TestSupersede(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	test.That(t, err, test.ShouldBeNil)
	coord, _ := newTestCoordinator(t, WithCollector(collector))

	goalA := NewGoal(r2.Point{X: 5, Y: 0}, 1, 0, 0.5)
	goalB := NewGoal(r2.Point{X: 0, Y: -5}, 0.5, 1, 0.5)
	test.That(t, coord.AcceptGoal(ctx, goalA), test.ShouldBeNil)
	test.That(t, coord.AcceptGoal(ctx, goalB), test.ShouldBeNil)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateActive)

	out, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0.05))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Result, test.ShouldBeNil)
	test.That(t, out.Feedback.GoalID, test.ShouldEqual, goalB.ID)
	test.That(t, out.Guidance.PathAngle, test.ShouldAlmostEqual, -math.Pi/2)

	test.That(t, testutil.ToFloat64(collector.Goals.WithLabelValues("superseded")), test.ShouldEqual, 1.0)
	test.That(t, testutil.ToFloat64(collector.Goals.WithLabelValues("preempted")), test.ShouldEqual, 0.0)
	test.That(t, testutil.ToFloat64(collector.GoalState), test.ShouldEqual, float64(GoalStateActive))
	test.That(t, testutil.ToFloat64(collector.DistanceToGoal), test.ShouldEqual, 5.0)
}

func TestDesiredOrientation(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: -3, Y: 3}, 1, 0, 0.5)), test.ShouldBeNil)

	out, err := coord.Tick(ctx, sampleAt(0, 0, 2.0, 0.05))
	test.That(t, err, test.ShouldBeNil)
	heading := spatialmath.HeadingFromQuaternion(out.Desired.Orientation)
	test.That(t, heading, test.ShouldAlmostEqual, utils.WrapToPi(out.Desired.Trajectory.Heading), 1e-9)
	test.That(t, out.Desired.Measured, test.ShouldResemble, out.State)
}

func TestSetLookahead(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	test.That(t, coord.Lookahead(), test.ShouldEqual, config.Default().Guidance.Lookahead)

	_, err := coord.Tick(ctx, sampleAt(0, 1, 0, 0.05))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 5, Y: 0}, 1, 0, 0.5)), test.ShouldBeNil)

	for _, bad := range []float64{0, -1, math.NaN()} {
		err := coord.SetLookahead(bad)
		test.That(t, errors.Is(err, guidance.ErrZeroLookahead), test.ShouldBeTrue)
	}
	test.That(t, coord.SetLookahead(2), test.ShouldBeNil)
	test.That(t, coord.Lookahead(), test.ShouldEqual, 2.0)
	test.That(t, coord.State(), test.ShouldEqual, GoalStateActive)

	out, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0.1))
	test.That(t, err, test.ShouldBeNil)
	// segment runs from (0, 1) to (5, 0); cross-track error is evaluated with the new delta
	expected, err := guidance.DesiredHeading(r2.Point{}, guidance.Segment{Previous: r2.Point{Y: 1}, Next: r2.Point{X: 5}}, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Guidance.DesiredHeading, test.ShouldAlmostEqual, expected)
}

func TestReconfigure(t *testing.T) {
	coord, ctrl := newTestCoordinator(t)

	cfg := config.Default()
	cfg.Guidance.Lookahead = 1.5
	cfg.Controller = config.AttributeMap{"heading_pid": map[string]interface{}{"p": 3, "i": 0.2, "sat": 2}}
	test.That(t, coord.Reconfigure(cfg), test.ShouldBeNil)
	test.That(t, coord.Lookahead(), test.ShouldEqual, 1.5)
	test.That(t, ctrl.Config().Heading, test.ShouldResemble, control.PIDGains{P: 3, I: 0.2, Sat: 2})

	bad := config.Default()
	bad.Guidance.Lookahead = -1
	test.That(t, coord.Reconfigure(bad), test.ShouldNotBeNil)
	test.That(t, coord.Lookahead(), test.ShouldEqual, 1.5)
}

func TestComposeCommand(t *testing.T) {
	for _, tc := range []struct {
		name   string
		wrench control.Wrench
		heave  float64
		force  r3.Vector
		torque r3.Vector
	}{
		{"forward", control.Wrench{Surge: 3, Sway: -1, Yaw: 0.5}, 2, r3.Vector{X: 3, Y: -1, Z: 2}, r3.Vector{Z: 0.5}},
		{"negative surge is zeroed", control.Wrench{Surge: -3, Sway: 1, Yaw: -0.5}, -2, r3.Vector{Y: 1, Z: -2}, r3.Vector{Z: -0.5}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cmd := ComposeCommand(tc.wrench, tc.heave)
			test.That(t, cmd.Force, test.ShouldResemble, tc.force)
			test.That(t, cmd.Torque, test.ShouldResemble, tc.torque)
		})
	}
}

func TestGoalStateString(t *testing.T) {
	test.That(t, GoalStateIdle.String(), test.ShouldEqual, "idle")
	test.That(t, GoalStateActive.String(), test.ShouldEqual, "active")
	test.That(t, GoalStateSucceeded.String(), test.ShouldEqual, "succeeded")
	test.That(t, GoalStatePreempted.String(), test.ShouldEqual, "preempted")
	test.That(t, GoalState(9).String(), test.ShouldEqual, "unknown(9)")
}

func TestCoordinatorDepthMemorySpansGoals(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	ctrl, err := control.NewBackstepping(control.DefaultBacksteppingConfig())
	test.That(t, err, test.ShouldBeNil)
	depth := control.NewPIDRegulator(control.PIDGains{D: 1, Sat: 100})
	coord, err := NewCoordinator(cfg, ctrl, depth, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = coord.Tick(ctx, sampleAt(0, 0, 0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 10}, 1, 1, 1)), test.ShouldBeNil)
	out, err := coord.Tick(ctx, sampleAt(0, 0, 0, 1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Command.Force.Z, test.ShouldEqual, 0.0)

	// a new goal keeps the derivative memory: (2 - 1) / (2 - 1)
	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 20}, 1, 2, 1)), test.ShouldBeNil)
	out, err = coord.Tick(ctx, sampleAt(0, 0, 0, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Command.Force.Z, test.ShouldAlmostEqual, 1.0, 1e-12)
}

func TestCoordinatorResynchronizesShaperPerGoal(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	_, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 10}, 1, 0, 1)), test.ShouldBeNil)
	for i := 1; i <= 20; i++ {
		out, err := coord.Tick(ctx, sampleAt(0, 0, 0, 0.05*float64(i)))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, math.Abs(out.Desired.Trajectory.Heading), test.ShouldBeLessThan, 1e-9)
	}

	// the vehicle has turned; the next goal's filter starts from where it points now
	_, err = coord.Tick(ctx, sampleAt(0, 0, 2, 1.05))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coord.AcceptGoal(ctx, NewGoal(r2.Point{X: 20}, 1, 0, 1)), test.ShouldBeNil)
	out, err := coord.Tick(ctx, sampleAt(0, 0, 2, 1.1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Desired.Trajectory.Heading, test.ShouldAlmostEqual, 2.0, 0.01)
}
