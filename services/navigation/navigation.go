// Package navigation runs the goal lifecycle of the line-of-sight guidance node: it accepts
// waypoint goals, turns every state sample into a shaped trajectory and a force/torque
// command while a goal is active, and reports feedback and results.
package navigation

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/guidance"
	"github.com/auvlab/losguidance/vehicle"
)

// ResultCompleted and ResultPreempted are the status texts of terminal results.
const (
	ResultCompleted = "goal completed"
	ResultPreempted = "goal preempted"
)

var (
	// ErrDegenerateGoal is returned when a goal's waypoint is the vehicle's current position.
	ErrDegenerateGoal = errors.New("goal waypoint equals current position")
	// ErrInvalidAcceptanceRadius is returned for goals whose sphere of acceptance is not positive.
	ErrInvalidAcceptanceRadius = errors.New("sphere of acceptance radius must be positive")
)

// GoalState is the lifecycle state of the coordinator.
type GoalState uint8

// The set of goal states.
const (
	GoalStateIdle = GoalState(iota)
	GoalStateActive
	GoalStateSucceeded
	GoalStatePreempted
)

func (s GoalState) String() string {
	switch s {
	case GoalStateIdle:
		return "idle"
	case GoalStateActive:
		return "active"
	case GoalStateSucceeded:
		return "succeeded"
	case GoalStatePreempted:
		return "preempted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Goal is a request to drive to Waypoint at Speed while holding Depth.
type Goal struct {
	ID               uuid.UUID
	Waypoint         r2.Point
	Speed            float64
	Depth            float64
	AcceptanceRadius float64
}

// NewGoal returns a goal with a fresh ID.
func NewGoal(waypoint r2.Point, speed, depth, radius float64) Goal {
	return Goal{
		ID:               uuid.New(),
		Waypoint:         waypoint,
		Speed:            speed,
		Depth:            depth,
		AcceptanceRadius: radius,
	}
}

// Feedback is emitted once per tick while a goal is active.
type Feedback struct {
	GoalID         uuid.UUID
	DistanceToGoal float64
}

// Result is emitted once when a goal succeeds or is preempted.
type Result struct {
	GoalID  uuid.UUID
	Success bool
	Text    string
}

// Desired is the shaped reference handed to the force/torque controller.
type Desired struct {
	Trajectory control.Trajectory
	// Orientation is the desired heading as a yaw-only quaternion.
	Orientation quat.Number
	Measured    vehicle.State
	Depth       float64
}

// Command is the wrench sent to the thrust allocation. Force is (surge, sway, heave) and
// Torque carries yaw in Z.
type Command struct {
	Force  r3.Vector
	Torque r3.Vector
}

// ComposeCommand builds the thrust command from a controller wrench and the depth regulator
// output. Negative surge is not commanded.
func ComposeCommand(w control.Wrench, heave float64) Command {
	var cmd Command
	if w.Surge > 0 {
		cmd.Force.X = w.Surge
	}
	cmd.Force.Y = w.Sway
	cmd.Force.Z = heave
	cmd.Torque.Z = w.Yaw
	return cmd
}

// A DepthRegulator produces heave force from the depth error at time t. Its memory carries
// over from one goal to the next.
type DepthRegulator interface {
	Regulate(err, t float64) float64
}

// Output is everything produced by one tick. Pointer fields are nil when the tick did not
// produce that record.
type Output struct {
	State     vehicle.State
	GoalState GoalState
	Guidance  *guidance.Solution
	Desired   *Desired
	Command   *Command
	Feedback  *Feedback
	Result    *Result
}
